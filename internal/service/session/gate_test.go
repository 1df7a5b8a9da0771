package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newGate() (*Gate, *auth.MemoryProvider, *storage.MemoryRepository) {
	provider := auth.NewMemoryProvider()
	repo := storage.NewMemoryRepository()
	return NewGate(provider, repo, zap.NewNop()), provider, repo
}

func TestResolveStates(t *testing.T) {
	gate, provider, repo := newGate()
	ctx := context.Background()

	assert.Equal(t, StateUnauthenticated, gate.Resolve(ctx, "").State)
	assert.Equal(t, StateUnauthenticated, gate.Resolve(ctx, "bogus").State)

	session, err := provider.SignUp(ctx, "ada@example.com", "lovelace#1815")
	require.NoError(t, err)

	result := gate.Resolve(ctx, session.Token)
	assert.Equal(t, StateNoProfile, result.State)
	require.NotNil(t, result.Identity)
	assert.Equal(t, session.Identity.ID, result.Identity.ID)
	assert.Nil(t, result.Profile)

	require.NoError(t, repo.CreateProfile(ctx, profile.Profile{ID: session.Identity.ID, Name: "Ada"}))

	result = gate.Resolve(ctx, session.Token)
	assert.True(t, result.Ready())
	require.NotNil(t, result.Profile)
	assert.Equal(t, "Ada", result.Profile.Name)
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) emit(result Result) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, 0, len(r.results))
	for _, result := range r.results {
		states = append(states, result.State)
	}
	return states
}

func TestWatchReResolvesOnSessionChange(t *testing.T) {
	gate, provider, repo := newGate()
	ctx, cancel := context.WithCancel(context.Background())

	session, err := provider.SignUp(ctx, "grace@example.com", "cobol!1959x")
	require.NoError(t, err)
	require.NoError(t, repo.CreateProfile(ctx, profile.Profile{ID: session.Identity.ID, Name: "Grace"}))

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- gate.Watch(ctx, session.Token, rec.emit) }()

	require.Eventually(t, func() bool {
		return len(rec.states()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []State{StateResolving, StateReady}, rec.states())

	require.NoError(t, provider.SignOut(ctx, session.Token))

	require.Eventually(t, func() bool {
		return len(rec.states()) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []State{StateResolving, StateReady, StateResolving, StateUnauthenticated}, rec.states())

	cancel()
	require.NoError(t, <-done)
}

func TestWatchIgnoresOtherSessions(t *testing.T) {
	gate, provider, _ := newGate()
	ctx, cancel := context.WithCancel(context.Background())

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- gate.Watch(ctx, "", rec.emit) }()

	require.Eventually(t, func() bool {
		return len(rec.states()) == 2
	}, time.Second, 5*time.Millisecond)

	_, err := provider.SignUp(ctx, "someone@example.com", "another$pass9")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []State{StateResolving, StateUnauthenticated}, rec.states())

	cancel()
	require.NoError(t, <-done)
}
