package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/cellc/internal/pipeline"
)

// Driver identifies a sink implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

// Content types of written files.
const (
	ContentTypeCpp  = "text/x-c++src"
	ContentTypeHpp  = "text/x-c++hdr"
	ContentTypeJSON = "application/json"
)

// IndexName is the batch index written by WriteIndex.
const IndexName = "index.json"

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("artifact not found")

// Info describes a stored file.
type Info struct {
	Key  string `json:"key"`
	Size int64  `json:"size_bytes"`
	ETag string `json:"etag,omitempty"`
}

// Sink stores files under slash-separated keys. Put overwrites.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Info, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Key joins a prefix and a file name.
func Key(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Write stores the header and source of one artifact.
func Write(ctx context.Context, s Sink, prefix string, a *pipeline.Artifact) ([]Info, error) {
	hpp, err := s.Put(ctx, Key(prefix, a.HeaderName()), []byte(a.Header), ContentTypeHpp)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", a.HeaderName(), err)
	}
	cpp, err := s.Put(ctx, Key(prefix, a.SourceName()), []byte(a.Source), ContentTypeCpp)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", a.SourceName(), err)
	}
	return []Info{hpp, cpp}, nil
}

// IndexEntry is one artifact in index.json.
type IndexEntry struct {
	*pipeline.Artifact
	HeaderFile string `json:"header_file"`
	SourceFile string `json:"source_file"`
}

// WriteIndex stores index.json describing the artifacts, in the order
// given.
func WriteIndex(ctx context.Context, s Sink, prefix string, as []*pipeline.Artifact) (Info, error) {
	entries := make([]IndexEntry, len(as))
	for i, a := range as {
		entries[i] = IndexEntry{Artifact: a, HeaderFile: a.HeaderName(), SourceFile: a.SourceName()}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("write index: %w", err)
	}
	info, err := s.Put(ctx, Key(prefix, IndexName), append(data, '\n'), ContentTypeJSON)
	if err != nil {
		return Info{}, fmt.Errorf("write index: %w", err)
	}
	return info, nil
}

// ReadIndex loads index.json. Header and Source are not filled in.
func ReadIndex(ctx context.Context, s Sink, prefix string) ([]IndexEntry, error) {
	data, err := s.Get(ctx, Key(prefix, IndexName))
	if err != nil {
		return nil, err
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return entries, nil
}

// Open returns the sink for a target and the key prefix within it.
func Open(ctx context.Context, target string) (Sink, string, error) {
	switch {
	case target == "memory:" || target == string(DriverMemory):
		return NewMemory(), "", nil
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(target, "s3://"), "/")
		if bucket == "" {
			return nil, "", fmt.Errorf("s3 target %q has no bucket", target)
		}
		cfg := ConfigFromEnv()
		cfg.Bucket = bucket
		s, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return s, prefix, nil
	case target == "":
		return nil, "", fmt.Errorf("empty output target")
	default:
		s, err := NewFilesystem(target)
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	}
}
