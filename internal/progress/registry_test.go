package progress

import (
	"context"
	"testing"

	"github.com/2beens/workoutsync/internal/localcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCardWeeks() CardWeeks {
	return CardWeeks{
		{
			{ID: "w1", Data: WorkoutMetadata{Title: "Morning yoga", Type: "yoga"}},
			{ID: "w2", Data: WorkoutMetadata{Title: "HIIT blast", Type: "hiit"}},
		},
		{
			{ID: "w3", Data: WorkoutMetadata{Title: "Core burn"}},
			// duplicated id in a later week, first occurrence must win
			{ID: "w1", Data: WorkoutMetadata{Title: "Evening yoga"}},
		},
	}
}

func TestCardRegistry_FindByID(t *testing.T) {
	r := NewCardRegistry(testCardWeeks())
	assert.Equal(t, 3, r.Len())

	card, found := r.FindByID("w3")
	require.True(t, found)
	assert.Equal(t, "Core burn", card.Data.Title)

	card, found = r.FindByID("w1")
	require.True(t, found)
	assert.Equal(t, "Morning yoga", card.Data.Title)

	_, found = r.FindByID("nope")
	assert.False(t, found)
}

func TestCardRegistry_Empty(t *testing.T) {
	r := NewCardRegistry(nil)
	assert.Equal(t, 0, r.Len())
	_, found := r.FindByID("w1")
	assert.False(t, found)
	assert.Empty(t, r.Snapshot())
}

func TestCardRegistry_ApplyAndSnapshot(t *testing.T) {
	r := NewCardRegistry(testCardWeeks())

	card, found := r.FindByID("w2")
	require.True(t, found)
	card.Completed = true

	// the copy returned by FindByID does not leak into the registry
	snapshot := r.Snapshot()
	assert.False(t, snapshot[0][1].Completed)

	assert.True(t, r.Apply(card))
	snapshot = r.Snapshot()
	assert.True(t, snapshot[0][1].Completed)

	// snapshot is a copy too
	snapshot[0][1].Completed = false
	card, _ = r.FindByID("w2")
	assert.True(t, card.Completed)

	assert.False(t, r.Apply(Card{ID: "unknown", Completed: true}))
}

func TestLoadCardRegistry(t *testing.T) {
	ctx := context.Background()
	store := localcache.NewMemoryStore(4, "")

	r, err := LoadCardRegistry(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())

	_, err = localcache.WriteJSON(ctx, store, localcache.KeyWorkoutCards, testCardWeeks(), localcache.AnyRevision)
	require.NoError(t, err)

	r, err = LoadCardRegistry(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	card, found := r.FindByID("w2")
	require.True(t, found)
	assert.Equal(t, "hiit", card.Data.Type)
}

func TestLoadCardRegistry_Corrupted(t *testing.T) {
	ctx := context.Background()
	store := localcache.NewMemoryStore(4, "")
	_, err := store.Put(ctx, localcache.KeyWorkoutCards, []byte(`{"not":"weeks"}`), localcache.AnyRevision)
	require.NoError(t, err)

	_, err = LoadCardRegistry(ctx, store)
	assert.Error(t, err)
}
