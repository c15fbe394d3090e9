package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clinicedge/clinicedge/internal/common"
	"github.com/clinicedge/clinicedge/internal/filex"
	"github.com/gofrs/flock"
)

// FileSlot stores all keys as one JSON object in a single file, guarded by an
// advisory file lock so two processes sharing the same data directory do not
// interleave partial writes. Last write still wins at the whole-file level.
type FileSlot struct {
	path     string
	fileLock *flock.Flock
}

// NewFileSlot returns a slot backed by the JSON file at path. The file and
// its parent directory are created lazily on first Set.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
}

func (s *FileSlot) lock(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)

	locked, err := s.fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", common.ErrSlotUnavailable, err)
	}
	if !locked {
		cancel()
		return nil, fmt.Errorf("%w: lock held elsewhere", common.ErrSlotUnavailable)
	}
	return func() {
		_ = s.fileLock.Unlock()
		cancel()
	}, nil
}

func (s *FileSlot) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return values, nil
}

func (s *FileSlot) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}
	return filex.WriteAtomic(s.path, data)
}

func (s *FileSlot) Get(ctx context.Context, key string) (string, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileSlot) Set(ctx context.Context, key, value string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *FileSlot) Delete(ctx context.Context, key string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileSlot) Close() error { return nil }
