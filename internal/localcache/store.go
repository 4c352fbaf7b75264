// Package localcache is the device-scoped document store the synchronizer treats
// as its system of record. Documents are whole JSON values stored under fixed
// keys, each carrying a revision that is bumped on every write.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeyWorkoutCards   = "workout-cards"
	KeyWorkoutProgram = "workout-program"
	KeyUserSettings   = "userSettings"
	KeyWeekIndex      = "numWeek"
	KeyIdentity       = "token"
)

// AnyRevision makes Put overwrite the document whatever its current revision is.
const AnyRevision int64 = -1

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document revision conflict")
)

type Entry struct {
	Value []byte
	// Revision is 0 for a document that was never written.
	Revision int64
}

type Store interface {
	// Get returns ErrNotFound when nothing is stored under key.
	Get(ctx context.Context, key string) (Entry, error)
	// Put stores value if the current revision equals expectedRevision (0 meaning
	// "not written yet"), or unconditionally for AnyRevision. It returns the new
	// revision, or ErrConflict.
	Put(ctx context.Context, key string, value []byte, expectedRevision int64) (int64, error)
}

// ReadJSON decodes the document stored under key into dst. Absence is reported
// through found=false, not as an error.
func ReadJSON(ctx context.Context, store Store, key string, dst any) (revision int64, found bool, err error) {
	entry, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get [%s]: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return 0, false, fmt.Errorf("unmarshal [%s]: %w", key, err)
	}
	return entry.Revision, true, nil
}

func WriteJSON(ctx context.Context, store Store, key string, v any, expectedRevision int64) (int64, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal [%s]: %w", key, err)
	}
	revision, err := store.Put(ctx, key, value, expectedRevision)
	if err != nil {
		return 0, fmt.Errorf("put [%s]: %w", key, err)
	}
	return revision, nil
}

// DeviceKey namespaces a document key to a single device.
func DeviceKey(deviceID, key string) string {
	if deviceID == "" {
		return key
	}
	return fmt.Sprintf("device::%s::%s", deviceID, key)
}

func revisionMatches(current, expected int64) bool {
	return expected == AnyRevision || current == expected
}
