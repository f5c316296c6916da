package artifact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memoryEntry struct {
	info        Info
	contentType string
	data        []byte
}

// Memory keeps files in process memory. It is used by tests and by
// dry runs.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{objs: make(map[string]memoryEntry)} }

func (s *Memory) Driver() Driver { return DriverMemory }

func (s *Memory) Put(_ context.Context, key string, data []byte, contentType string) (Info, error) {
	if strings.TrimSpace(key) == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	b := append([]byte(nil), data...)
	info := Info{Key: key, Size: int64(len(b)), ETag: etag(b)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = memoryEntry{info: info, contentType: contentType, data: b}
	return info, nil
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), obj.data...), nil
}

// ContentType returns the content type a key was stored with.
func (s *Memory) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objs[key].contentType
}

func (s *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for k, obj := range s.objs {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, obj.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
