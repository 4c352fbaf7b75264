package localcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/coocood/freecache"
)

var _ Store = (*MemoryStore)(nil)

var ErrDocumentTooLarge = errors.New("document too large for memory store")

const (
	// revision (8) + chunk count (4)
	headLen = 12

	// mirror of freecache internals: 256 segments, a segment takes entries
	// up to a quarter of its size, each entry carries a 24 byte header
	freecacheMinSize     = 512 * 1024
	freecacheEntryFactor = 1024
	freecacheEntryHeader = 24

	// room for "::<revision>::<chunk>" after the base key
	chunkKeySuffixLen = 48
	// chunks take a quarter of the entry limit, a segment holds about 16
	chunksPerEntry = 4
)

// MemoryStore keeps documents in a freecache segment. It does not survive a
// restart and is meant for development and tests.
//
// freecache refuses entries above 1/1024 of its size, so a document is kept
// as a head entry (revision and chunk count) plus value chunks that each fit
// one entry. Small values are stored inline in the head.
type MemoryStore struct {
	mu       sync.Mutex
	cache    *freecache.Cache
	deviceID string

	maxEntry    int
	maxDocument int
}

func NewMemoryStore(sizeMB int, deviceID string) *MemoryStore {
	megabyte := 1024 * 1024
	size := sizeMB * megabyte
	if size < freecacheMinSize {
		size = freecacheMinSize
	}
	return &MemoryStore{
		cache:    freecache.NewCache(size),
		deviceID: deviceID,
		maxEntry: size/freecacheEntryFactor - freecacheEntryHeader,
		// larger documents would evict each other on every write
		maxDocument: size / 4,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, _, err := m.get(key)
	return entry, err
}

// get returns the entry and its chunk count.
func (m *MemoryStore) get(key string) (Entry, int, error) {
	baseKey := DeviceKey(m.deviceID, key)
	head, err := m.cache.Get([]byte(baseKey))
	if errors.Is(err, freecache.ErrNotFound) {
		return Entry{}, 0, ErrNotFound
	}
	if err != nil {
		return Entry{}, 0, err
	}
	if len(head) < headLen {
		return Entry{}, 0, fmt.Errorf("corrupted entry for [%s]", key)
	}

	revision := int64(binary.BigEndian.Uint64(head[:8]))
	chunks := int(binary.BigEndian.Uint32(head[8:headLen]))
	if chunks == 0 {
		return Entry{Revision: revision, Value: head[headLen:]}, 0, nil
	}

	var value []byte
	for i := 0; i < chunks; i++ {
		chunk, err := m.cache.Get(chunkKey(baseKey, revision, i))
		if err != nil {
			// evicted under memory pressure
			return Entry{}, 0, fmt.Errorf("incomplete entry for [%s], chunk %d/%d: %w", key, i+1, chunks, err)
		}
		value = append(value, chunk...)
	}
	return Entry{Revision: revision, Value: value}, chunks, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, expectedRevision int64) (int64, error) {
	if len(value) > m.maxDocument {
		return 0, fmt.Errorf("put [%s] (%d bytes, max %d): %w", key, len(value), m.maxDocument, ErrDocumentTooLarge)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	var currentChunks int
	entry, chunks, err := m.get(key)
	switch {
	case err == nil:
		current = entry.Revision
		currentChunks = chunks
	case errors.Is(err, ErrNotFound):
	default:
		return 0, err
	}

	if !revisionMatches(current, expectedRevision) {
		return 0, ErrConflict
	}

	baseKey := DeviceKey(m.deviceID, key)
	next := current + 1

	head := make([]byte, headLen, headLen+len(value))
	binary.BigEndian.PutUint64(head[:8], uint64(next))
	if len(baseKey)+headLen+len(value) <= m.maxEntry {
		head = append(head, value...)
	} else {
		written, err := m.setChunks(baseKey, next, value)
		if err != nil {
			m.delChunks(baseKey, next, written)
			return 0, err
		}
		binary.BigEndian.PutUint32(head[8:headLen], uint32(written))
	}

	// 0 expire seconds -> never expires
	if err := m.cache.Set([]byte(baseKey), head, 0); err != nil {
		m.delChunks(baseKey, next, int(binary.BigEndian.Uint32(head[8:headLen])))
		return 0, fmt.Errorf("freecache set: %w", err)
	}
	m.delChunks(baseKey, current, currentChunks)
	return next, nil
}

// setChunks writes value in entry sized chunks and returns how many were written.
func (m *MemoryStore) setChunks(baseKey string, revision int64, value []byte) (int, error) {
	chunkSize := m.maxEntry/chunksPerEntry - freecacheEntryHeader - len(baseKey) - chunkKeySuffixLen
	if chunkSize <= 0 {
		return 0, fmt.Errorf("key [%s] too long for memory store", baseKey)
	}

	written := 0
	for offset := 0; offset < len(value); offset += chunkSize {
		end := offset + chunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := m.cache.Set(chunkKey(baseKey, revision, written), value[offset:end], 0); err != nil {
			return written, fmt.Errorf("freecache set chunk %d: %w", written, err)
		}
		written++
	}
	return written, nil
}

func (m *MemoryStore) delChunks(baseKey string, revision int64, chunks int) {
	for i := 0; i < chunks; i++ {
		m.cache.Del(chunkKey(baseKey, revision, i))
	}
}

func chunkKey(baseKey string, revision int64, index int) []byte {
	return []byte(fmt.Sprintf("%s::%d::%d", baseKey, revision, index))
}

// EntryCount returns the number of freecache entries, chunks included.
func (m *MemoryStore) EntryCount() int64 {
	return m.cache.EntryCount()
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Clear()
}
