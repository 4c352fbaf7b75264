package localcache

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Get(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	store := NewRedisStore(rdb, "d1")
	docKey, revKey := "device::d1::userSettings", "device::d1::userSettings||rev"

	mock.ExpectMGet(docKey, revKey).SetVal([]interface{}{`{"caloriesBurned":10}`, "4"})
	entry, err := store.Get(context.Background(), KeyUserSettings)
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Revision)
	assert.Equal(t, `{"caloriesBurned":10}`, string(entry.Value))

	mock.ExpectMGet(docKey, revKey).SetVal([]interface{}{nil, nil})
	_, err = store.Get(context.Background(), KeyUserSettings)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectMGet(docKey, revKey).SetErr(errors.New("connection refused"))
	_, err = store.Get(context.Background(), KeyUserSettings)
	assert.EqualError(t, err, "redis mget: connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Put(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	store := NewRedisStore(rdb, "")
	keys := []string{"workout-program", "workout-program||rev"}

	mock.ExpectEvalSha(putScript.Hash(), keys, int64(2), `[[]]`).SetVal(int64(3))
	rev, err := store.Put(context.Background(), KeyWorkoutProgram, []byte(`[[]]`), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)

	mock.ExpectEvalSha(putScript.Hash(), keys, int64(1), `[[]]`).SetVal(int64(-1))
	_, err = store.Put(context.Background(), KeyWorkoutProgram, []byte(`[[]]`), 1)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}
