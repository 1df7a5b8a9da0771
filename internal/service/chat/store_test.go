package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
)

func TestStoreAppendKeepsOrder(t *testing.T) {
	store := NewStore()
	now := time.Now()

	store.Append(chat.NewUserTurn("first", now))
	store.Append(chat.NewTutorTurn("second", chat.SpecialAction{}, now))

	turns := store.Turns()
	assert.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Message)
	assert.Equal(t, "second", turns[1].Message)

	turns[0].Message = "mutated"
	assert.Equal(t, "first", store.Turns()[0].Message)
}

func TestStoreReplaceAllCopies(t *testing.T) {
	store := NewStore()
	loaded := []chat.Turn{{IsUser: true, Message: "a"}, {Message: "b"}}

	store.ReplaceAll(loaded)
	loaded[0].Message = "changed"

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, "a", store.Turns()[0].Message)
}

func TestStoreSyncIdleCopies(t *testing.T) {
	store := NewStore()
	loaded := []chat.Turn{{IsUser: true, Message: "a"}, {Message: "b"}}

	assert.True(t, store.SyncIdle(loaded))
	loaded[0].Message = "changed"

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, "a", store.Turns()[0].Message)
}

func TestStoreBusyFlag(t *testing.T) {
	store := NewStore()

	assert.True(t, store.TryBegin())
	assert.True(t, store.Busy())
	assert.False(t, store.TryBegin())

	store.End(true)
	assert.False(t, store.Busy())
	assert.True(t, store.TryBegin())
}

func TestStoreSyncIdleRefusedWhileBusy(t *testing.T) {
	store := NewStore()
	require.True(t, store.BeginWith(nil))
	store.Append(chat.NewUserTurn("pending", time.Now()))

	assert.False(t, store.SyncIdle([]chat.Turn{}))
	assert.Equal(t, 1, store.Len())
	assert.False(t, store.BeginWith([]chat.Turn{}))
	assert.Equal(t, 1, store.Len())
}

func TestStoreUnsavedTurnsSurviveReload(t *testing.T) {
	store := NewStore()
	row := []chat.Turn{{IsUser: true, Message: "q"}, {Message: "a"}}

	require.True(t, store.BeginWith(row))
	store.Append(chat.NewUserTurn("lost reply", time.Now()))
	store.End(false)
	assert.True(t, store.Unsaved())

	assert.False(t, store.SyncIdle(row))
	require.True(t, store.BeginWith(row))
	assert.Equal(t, 3, store.Len())
	store.End(true)

	assert.False(t, store.Unsaved())
	assert.True(t, store.SyncIdle(row))
	assert.Equal(t, 2, store.Len())
}

func TestSelectorSingleActive(t *testing.T) {
	selector := NewSelector(simulation.NewMemoryCatalog(simulation.Seed()), zap.NewNop())

	_, ok := selector.Activate(chat.Turn{IsUser: true, Data: string(simulation.Friction)})
	assert.False(t, ok)

	sim, ok := selector.Activate(chat.Turn{Data: string(simulation.Friction)})
	assert.True(t, ok)
	assert.Equal(t, simulation.ViewFriction, sim.View)

	sim, ok = selector.Activate(chat.Turn{Data: string(simulation.WaveInterference)})
	assert.True(t, ok)
	assert.Equal(t, simulation.ViewPlaceholder, sim.View)
	assert.False(t, sim.Implemented)

	active, ok := selector.Active()
	assert.True(t, ok)
	assert.Equal(t, simulation.WaveInterference, active.ID)

	_, ok = selector.Activate(chat.Turn{Data: "unknown_simulation"})
	assert.False(t, ok)
	active, _ = selector.Active()
	assert.Equal(t, simulation.WaveInterference, active.ID)

	selector.Dismiss()
	_, ok = selector.Active()
	assert.False(t, ok)
}
