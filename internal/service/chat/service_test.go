package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/analysis/tokens"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
	chatsvc "github.com/ItsSitanshu/dhyan.ai/backend/internal/service/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/tutor"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

type countingRepo struct {
	*storage.MemoryRepository

	mu        sync.Mutex
	saves     int
	titles    []string
	failSaves bool
}

func (r *countingRepo) UpdateMessages(ctx context.Context, id string, turns []chat.Turn) error {
	r.mu.Lock()
	r.saves++
	fail := r.failSaves
	r.mu.Unlock()
	if fail {
		return errors.New("row store unavailable")
	}
	return r.MemoryRepository.UpdateMessages(ctx, id, turns)
}

func (r *countingRepo) UpdateTitle(ctx context.Context, id, title string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	return r.MemoryRepository.UpdateTitle(ctx, id, title)
}

func (r *countingRepo) counts() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves, append([]string(nil), r.titles...)
}

type fakeTutor struct {
	mu            sync.Mutex
	ask           tutor.AskResult
	askErr        error
	title         tutor.TitleResult
	contexts      []string
	titleContexts []string
	titleCalls    int
	block         chan struct{}
	entered       chan struct{}
}

func (f *fakeTutor) Ask(_ context.Context, _ map[string]any, _ string, conversationContext string) (tutor.AskResult, error) {
	f.mu.Lock()
	f.contexts = append(f.contexts, conversationContext)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return f.ask, f.askErr
}

func (f *fakeTutor) RequestTitle(_ context.Context, conversationContext string) (tutor.TitleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	f.titleContexts = append(f.titleContexts, conversationContext)
	return f.title, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var learner = profile.Identity{ID: "user-1", Email: "learner@example.com"}

func newService(t *testing.T, tut *fakeTutor, opts ...chatsvc.Option) (*chatsvc.Service, *countingRepo) {
	t.Helper()
	repo := &countingRepo{MemoryRepository: storage.NewMemoryRepository()}
	catalog := simulation.NewMemoryCatalog(simulation.Seed())
	return chatsvc.NewService(repo, tut, catalog, zap.NewNop(), opts...), repo
}

func okTutor() *fakeTutor {
	return &fakeTutor{
		ask:   tutor.AskResult{Code: 200, Response: "Force equals mass times acceleration.", SpecialAction: "null"},
		title: tutor.TitleResult{Code: 200, Response: "Newton's Laws"},
	}
}

func TestServiceCreateAndOpen(t *testing.T) {
	svc, _ := newService(t, okTutor())
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, conversation.Title)

	got, err := svc.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, got.ID)
	assert.Empty(t, got.Turns)

	summaries, err := svc.List(ctx, learner)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, conversation.ID, summaries[0].ID)
}

func TestServiceOpenMissingChat(t *testing.T) {
	svc, _ := newService(t, okTutor())

	_, err := svc.Open(context.Background(), learner, "missing")
	assert.ErrorIs(t, err, storage.ErrChatNotFound)
}

func TestServiceOpenForeignChat(t *testing.T) {
	svc, _ := newService(t, okTutor())
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	stranger := profile.Identity{ID: "user-2"}
	_, err = svc.Open(ctx, stranger, conversation.ID)
	assert.ErrorIs(t, err, storage.ErrChatNotFound)

	_, err = svc.Send(ctx, stranger, conversation.ID, "hello")
	assert.ErrorIs(t, err, storage.ErrChatNotFound)
}

func TestServiceSendSavesOncePerExchange(t *testing.T) {
	tut := okTutor()
	svc, repo := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	exchange, err := svc.Send(ctx, learner, conversation.ID, "  What is force?  ")
	require.NoError(t, err)
	assert.Equal(t, "What is force?", exchange.User.Message)
	require.NotNil(t, exchange.Reply)
	assert.Equal(t, 1, exchange.ReplyIndex)
	assert.Empty(t, exchange.Reply.Data)

	saves, titles := repo.counts()
	assert.Equal(t, 1, saves)
	assert.Empty(t, titles)

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	require.Len(t, stored.Turns, 2)
	assert.True(t, stored.Turns[0].IsUser)
	assert.False(t, stored.Turns[1].IsUser)

	assert.Equal(t, []string{"User: What is force?\n"}, tut.contexts)
}

func TestServiceTitlesExactlyAtSixTurns(t *testing.T) {
	tut := okTutor()
	svc, repo := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.Send(ctx, learner, conversation.ID, "next question")
		require.NoError(t, err)

		_, titles := repo.counts()
		switch {
		case i < 2:
			assert.Empty(t, titles, "exchange %d", i)
		default:
			assert.Equal(t, []string{"Newton's Laws"}, titles, "exchange %d", i)
		}
	}

	saves, _ := repo.counts()
	assert.Equal(t, 4, saves)
	assert.Equal(t, 1, tut.titleCalls)

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Newton's Laws", stored.Title)
}

func TestServiceFailedTitleKeepsDefault(t *testing.T) {
	tut := okTutor()
	tut.title = tutor.TitleResult{Code: 500}
	svc, repo := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, learner, conversation.ID, "question")
		require.NoError(t, err)
	}

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, stored.Title)
	assert.Equal(t, 1, tut.titleCalls)
}

func TestServiceSaveFailureSkipsTitle(t *testing.T) {
	tut := okTutor()
	svc, repo := newService(t, tut)
	repo.failSaves = true
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		exchange, err := svc.Send(ctx, learner, conversation.ID, "question")
		require.NoError(t, err)
		require.NotNil(t, exchange.Reply)
	}

	assert.Zero(t, tut.titleCalls)

	got, err := svc.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 6)
}

func TestServiceTutorFailureLeavesNoReply(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*fakeTutor)
	}{
		{name: "error", setup: func(f *fakeTutor) { f.askErr = errors.New("timeout") }},
		{name: "non-ok code", setup: func(f *fakeTutor) { f.ask = tutor.AskResult{Code: 503} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tut := okTutor()
			tc.setup(tut)
			svc, repo := newService(t, tut)
			ctx := context.Background()

			conversation, err := svc.Create(ctx, learner)
			require.NoError(t, err)

			exchange, err := svc.Send(ctx, learner, conversation.ID, "hello")
			require.NoError(t, err)
			assert.Nil(t, exchange.Reply)

			saves, _ := repo.counts()
			assert.Zero(t, saves)

			got, err := svc.Open(ctx, learner, conversation.ID)
			require.NoError(t, err)
			require.Len(t, got.Turns, 1)
			assert.True(t, got.Turns[0].IsUser)
		})
	}
}

func TestServiceRejectsBlankMessage(t *testing.T) {
	svc, _ := newService(t, okTutor())
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	_, err = svc.Send(ctx, learner, conversation.ID, " \n\t")
	assert.ErrorIs(t, err, chatsvc.ErrEmptyMessage)
}

func TestServiceDropsSendWhileBusy(t *testing.T) {
	tut := okTutor()
	tut.block = make(chan struct{})
	tut.entered = make(chan struct{}, 1)
	svc, repo := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, learner, conversation.ID, "first")
		done <- err
	}()
	<-tut.entered

	_, err = svc.Send(ctx, learner, conversation.ID, "second")
	assert.ErrorIs(t, err, chatsvc.ErrBusy)

	close(tut.block)
	require.NoError(t, <-done)

	got, err := svc.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "first", got.Turns[0].Message)

	saves, _ := repo.counts()
	assert.Equal(t, 1, saves)
}

func TestServiceSpecialActionAndSimulation(t *testing.T) {
	tut := okTutor()
	tut.ask.SpecialAction = "```json\n{'id': 1, 'data': 'gravity_orbit_simulation'}\n```"
	svc, repo := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	exchange, err := svc.Send(ctx, learner, conversation.ID, "How do orbits work?")
	require.NoError(t, err)
	require.NotNil(t, exchange.Reply)
	assert.Equal(t, "gravity_orbit_simulation", exchange.Reply.Data)

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, "gravity_orbit_simulation", stored.Turns[1].Data)

	_, _, err = svc.LaunchSimulation(ctx, learner, conversation.ID, exchange.UserIndex)
	assert.ErrorIs(t, err, chatsvc.ErrNoSimulation)
	_, _, err = svc.LaunchSimulation(ctx, learner, conversation.ID, 9)
	assert.ErrorIs(t, err, chatsvc.ErrTurnNotFound)

	sim, ok, err := svc.LaunchSimulation(ctx, learner, conversation.ID, exchange.ReplyIndex)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, simulation.ViewOrbitals, sim.View)

	active, ok, err := svc.ActiveSimulation(ctx, learner, conversation.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, simulation.GravityOrbit, active.ID)

	require.NoError(t, svc.DismissSimulation(ctx, learner, conversation.ID))
	_, ok, err = svc.ActiveSimulation(ctx, learner, conversation.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceUnknownSimulationIsIgnored(t *testing.T) {
	tut := okTutor()
	tut.ask.SpecialAction = "{'id': 0, 'data': 'time_machine_simulation'}"
	svc, _ := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	exchange, err := svc.Send(ctx, learner, conversation.ID, "Can I travel in time?")
	require.NoError(t, err)

	_, ok, err := svc.LaunchSimulation(ctx, learner, conversation.ID, exchange.ReplyIndex)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = svc.ActiveSimulation(ctx, learner, conversation.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceMalformedActionStillReplies(t *testing.T) {
	tut := okTutor()
	tut.ask.SpecialAction = "{'id': 1, 'data': }"
	svc, _ := newService(t, tut)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)

	exchange, err := svc.Send(ctx, learner, conversation.ID, "hi")
	require.NoError(t, err)
	require.NotNil(t, exchange.Reply)
	assert.Empty(t, exchange.Reply.Data)
}

func TestServiceReloadDoesNotSave(t *testing.T) {
	tut := okTutor()
	repo := &countingRepo{MemoryRepository: storage.NewMemoryRepository()}
	catalog := simulation.NewMemoryCatalog(simulation.Seed())
	ctx := context.Background()

	first := chatsvc.NewService(repo, tut, catalog, zap.NewNop())
	conversation, err := first.Create(ctx, learner)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := first.Send(ctx, learner, conversation.ID, "question")
		require.NoError(t, err)
	}
	saves, titles := repo.counts()
	require.Equal(t, 3, saves)
	require.Len(t, titles, 1)

	second := chatsvc.NewService(repo, tut, catalog, zap.NewNop())
	got, err := second.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 6)

	saves, titles = repo.counts()
	assert.Equal(t, 3, saves)
	assert.Len(t, titles, 1)
	assert.Equal(t, 1, tut.titleCalls)
}

func TestServiceSendKeepsTurnsFromOtherInstance(t *testing.T) {
	tut := okTutor()
	repo := &countingRepo{MemoryRepository: storage.NewMemoryRepository()}
	catalog := simulation.NewMemoryCatalog(simulation.Seed())
	ctx := context.Background()

	a := chatsvc.NewService(repo, tut, catalog, zap.NewNop())
	b := chatsvc.NewService(repo, tut, catalog, zap.NewNop())

	conversation, err := a.Create(ctx, learner)
	require.NoError(t, err)

	_, err = a.Send(ctx, learner, conversation.ID, "A first")
	require.NoError(t, err)
	_, err = b.Send(ctx, learner, conversation.ID, "B first")
	require.NoError(t, err)

	got, err := a.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 4)
	assert.Equal(t, "B first", got.Turns[2].Message)

	_, err = b.Send(ctx, learner, conversation.ID, "B again")
	require.NoError(t, err)
	exchange, err := a.Send(ctx, learner, conversation.ID, "A again")
	require.NoError(t, err)
	assert.Equal(t, 6, exchange.UserIndex)

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	var users []string
	for _, turn := range stored.Turns {
		if turn.IsUser {
			users = append(users, turn.Message)
		}
	}
	assert.Equal(t, []string{"A first", "B first", "B again", "A again"}, users)
	assert.Len(t, stored.Turns, 8)
}

func TestServiceEvictsIdleWorkspaces(t *testing.T) {
	tut := okTutor()
	tut.ask.SpecialAction = "{'id': 1, 'data': 'friction_simulation'}"
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _ := newService(t, tut, chatsvc.WithClock(clock.Now), chatsvc.WithIdleTTL(time.Hour))
	ctx := context.Background()

	idle, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	exchange, err := svc.Send(ctx, learner, idle.ID, "Why do things slow down?")
	require.NoError(t, err)
	_, ok, err := svc.LaunchSimulation(ctx, learner, idle.ID, exchange.ReplyIndex)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Hour)

	fresh, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	exchange, err = svc.Send(ctx, learner, fresh.ID, "And on ice?")
	require.NoError(t, err)
	_, ok, err = svc.LaunchSimulation(ctx, learner, fresh.ID, exchange.ReplyIndex)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = svc.ActiveSimulation(ctx, learner, idle.ID)
	require.NoError(t, err)
	assert.False(t, ok, "evicted workspace should start without a simulation")

	_, ok, err = svc.ActiveSimulation(ctx, learner, fresh.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.Open(ctx, learner, idle.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 2)
}

func TestServiceKeepsUnsavedWorkspaceWhenIdle(t *testing.T) {
	tut := okTutor()
	tut.askErr = errors.New("timeout")
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _ := newService(t, tut, chatsvc.WithClock(clock.Now), chatsvc.WithIdleTTL(time.Hour))
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	_, err = svc.Send(ctx, learner, conversation.ID, "hello?")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Create(ctx, learner)
	require.NoError(t, err)

	got, err := svc.Open(ctx, learner, conversation.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, "hello?", got.Turns[0].Message)
}

func TestServiceStampsTurnsWithClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, repo := newService(t, okTutor(), chatsvc.WithClock(clock.Now))
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), conversation.CreatedAt)

	clock.Advance(time.Minute)
	exchange, err := svc.Send(ctx, learner, conversation.ID, "What is inertia?")
	require.NoError(t, err)
	require.NotNil(t, exchange.Reply)
	assert.Equal(t, clock.Now().UnixMilli(), exchange.User.Timestamp)
	assert.Equal(t, clock.Now().UnixMilli(), exchange.Reply.Timestamp)

	stored, err := repo.GetChat(ctx, conversation.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UnixMilli(), stored.Turns[0].Timestamp)
}

func TestServiceTranscriptStaysWithinBudget(t *testing.T) {
	const budget = 10
	tut := okTutor()
	svc, _ := newService(t, tut, chatsvc.WithMaxTokens(budget))
	ctx := context.Background()

	conversation, err := svc.Create(ctx, learner)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		message := fmt.Sprintf("question %d %s", i, strings.Repeat("x", 80))
		_, err := svc.Send(ctx, learner, conversation.ID, message)
		require.NoError(t, err)
	}

	require.Len(t, tut.contexts, 3)
	for i, sent := range tut.contexts {
		assert.LessOrEqual(t, tokens.Estimate(sent), budget, "ask %d", i)
		assert.True(t, strings.HasSuffix(sent, "xxxx\n"), "ask %d keeps the latest turn", i)
	}
	assert.NotContains(t, tut.contexts[2], "question 0")

	require.Len(t, tut.titleContexts, 1)
	title := tut.titleContexts[0]
	assert.LessOrEqual(t, tokens.Estimate(title), budget)
	assert.True(t, strings.HasSuffix(title, tut.ask.Response+"\n"))
}
