package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

var _ Store = (*DiskStore)(nil)

// DiskStore keeps each document in its own JSON file under rootPath.
type DiskStore struct {
	mu       sync.RWMutex
	rootPath string
	deviceID string
}

type diskRecord struct {
	Revision int64           `json:"revision"`
	Value    json.RawMessage `json:"value"`
}

func NewDiskStore(rootPath, deviceID string) (*DiskStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create root dir: %w", err)
	}
	return &DiskStore{
		rootPath: rootPath,
		deviceID: deviceID,
	}, nil
}

func (ds *DiskStore) path(key string) string {
	return filepath.Join(ds.rootPath, url.PathEscape(DeviceKey(ds.deviceID, key))+".json")
}

func (ds *DiskStore) Get(_ context.Context, key string) (Entry, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.read(key)
}

func (ds *DiskStore) read(key string) (Entry, error) {
	data, err := os.ReadFile(ds.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entry{}, fmt.Errorf("decode record [%s]: %w", key, err)
	}
	return Entry{
		Value:    rec.Value,
		Revision: rec.Revision,
	}, nil
}

func (ds *DiskStore) Put(_ context.Context, key string, value []byte, expectedRevision int64) (int64, error) {
	if !json.Valid(value) {
		return 0, fmt.Errorf("value for [%s] is not valid json", key)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	var current int64
	entry, err := ds.read(key)
	switch {
	case err == nil:
		current = entry.Revision
	case errors.Is(err, ErrNotFound):
	default:
		return 0, err
	}

	if !revisionMatches(current, expectedRevision) {
		return 0, ErrConflict
	}

	rec := diskRecord{
		Revision: current + 1,
		Value:    value,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}

	// write to a temp file first, rename is atomic on the same filesystem
	target := ds.path(key)
	tmp, err := os.CreateTemp(ds.rootPath, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("disk store: remove temp file %s: %s", tmp.Name(), err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("rename temp file: %w", err)
	}

	return rec.Revision, nil
}
