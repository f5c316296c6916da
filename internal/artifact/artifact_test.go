package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

func generated(t *testing.T, variant string) *pipeline.Artifact {
	t.Helper()
	v, err := scheme.ParseVariant(variant)
	require.NoError(t, err)
	a, err := pipeline.Generate(context.Background(), pipeline.Task{Model: models.MustLoad(models.LinearDecay), Variant: v}, pipeline.DefaultOptions())
	require.NoError(t, err)
	return a
}

// exerciseSink checks the behaviour every sink shares.
func exerciseSink(t *testing.T, s Sink) {
	t.Helper()
	ctx := context.Background()
	a := generated(t, "BackwardEuler")

	infos, err := Write(ctx, s, "cells", a)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "cells/"+a.HeaderName(), infos[0].Key)
	assert.Equal(t, int64(len(a.Header)), infos[0].Size)

	got, err := s.Get(ctx, "cells/"+a.SourceName())
	require.NoError(t, err)
	assert.Equal(t, a.Source, string(got))

	// Put overwrites.
	_, err = s.Put(ctx, "cells/"+a.SourceName(), []byte("changed"), ContentTypeCpp)
	require.NoError(t, err)
	got, err = s.Get(ctx, "cells/"+a.SourceName())
	require.NoError(t, err)
	assert.Equal(t, "changed", string(got))

	_, err = WriteIndex(ctx, s, "cells", []*pipeline.Artifact{a})
	require.NoError(t, err)
	entries, err := ReadIndex(ctx, s, "cells")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ClassName, entries[0].ClassName)
	assert.Equal(t, a.Hash, entries[0].Hash)
	assert.Equal(t, a.HeaderName(), entries[0].HeaderFile)
	assert.Empty(t, entries[0].Header, "file contents are not indexed")

	list, err := s.List(ctx, "cells/")
	require.NoError(t, err)
	keys := make([]string, len(list))
	for i, info := range list {
		keys[i] = info.Key
	}
	want := []string{"cells/" + a.SourceName(), "cells/" + a.HeaderName(), "cells/" + IndexName}
	sort.Strings(want)
	assert.Equal(t, want, keys)

	_, err = s.Get(ctx, "cells/missing.hpp")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestMemorySink(t *testing.T) {
	s := NewMemory()
	assert.Equal(t, DriverMemory, s.Driver())
	exerciseSink(t, s)
	assert.Equal(t, ContentTypeJSON, s.ContentType("cells/"+IndexName))
}

func TestFilesystemSink(t *testing.T) {
	root := t.TempDir()
	s, err := NewFilesystem(root)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	exerciseSink(t, s)

	_, err = os.Stat(filepath.Join(root, "cells", IndexName))
	assert.NoError(t, err)
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/etc/passwd", "../out.hpp", "a/../../b"} {
		_, err := s.Put(context.Background(), key, []byte("x"), "")
		assert.Error(t, err, key)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a.hpp", Key("", "a.hpp"))
	assert.Equal(t, "out/a.hpp", Key("/out/", "a.hpp"))
	assert.Equal(t, "x/y/a.hpp", Key("x/y", "a.hpp"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, prefix, err := Open(ctx, "memory:")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())
	assert.Empty(t, prefix)

	dir := filepath.Join(t.TempDir(), "out")
	s, _, err = Open(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	assert.DirExists(t, dir)

	t.Setenv("CELLC_S3_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, prefix, err = Open(ctx, "s3://cells-bucket/generated/v1")
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s.Driver())
	assert.Equal(t, "cells-bucket", s.(*S3).Bucket())
	assert.Equal(t, "generated/v1", prefix)

	_, _, err = Open(ctx, "s3:///nobucket")
	assert.Error(t, err)
	_, _, err = Open(ctx, "")
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CELLC_S3_BUCKET", "b")
	t.Setenv("CELLC_S3_REGION", "r")
	t.Setenv("CELLC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("CELLC_S3_PATH_STYLE", "TRUE")
	assert.Equal(t, S3Config{Bucket: "b", Region: "r", Endpoint: "http://minio:9000", PathStyle: true}, ConfigFromEnv())
}

func TestS3Sink(t *testing.T) {
	rt := newMockS3()
	s, err := NewS3(context.Background(), S3Config{
		Bucket:          "cells",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s.Driver())
	exerciseSink(t, s)

	assert.Equal(t, ContentTypeHpp, rt.contentType("cells/"+generated(t, "BackwardEuler").HeaderName()))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.EqualError(t, err, "s3 bucket required")
}

// mockS3 serves path-style PutObject, GetObject and ListObjectsV2
// requests from memory.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

type mockObject struct {
	body        []byte
	contentType string
}

func newMockS3() *mockS3 { return &mockS3{objects: make(map[string]mockObject)} }

func (m *mockS3) contentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Path is /<bucket>/<key>.
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(m.objects[k].body))
		}
		fmt.Fprintf(&b, "<KeyCount>%d</KeyCount></ListBucketResult>", len(keys))
		return response(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type")}
		return response(http.StatusOK, "", http.Header{"ETag": {`"etag"`}}), nil
	case req.Method == http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return response(http.StatusNotFound, "", http.Header{}), nil
		}
		return response(http.StatusOK, string(obj.body), http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"ETag":           {`"etag"`},
		}), nil
	}
	return response(http.StatusNotImplemented, "", http.Header{}), nil
}

func response(status int, body string, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader([]byte(body))), ContentLength: int64(len(body))}
}

// decodeChunked undoes aws-chunked content encoding: <hex size>\r\n<data>\r\n ... 0\r\n.
func decodeChunked(b []byte) ([]byte, bool) {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return nil, false
		}
		head, _, _ := strings.Cut(string(b[:i]), ";")
		n, err := strconv.ParseInt(head, 16, 64)
		if err != nil {
			return nil, false
		}
		b = b[i+2:]
		if n == 0 {
			return out, true
		}
		if int64(len(b)) < n+2 {
			return nil, false
		}
		out = append(out, b[:n]...)
		b = b[n+2:]
	}
}
