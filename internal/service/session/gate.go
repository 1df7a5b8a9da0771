// Package session decides whether a caller may see the chat: signed in, and
// with a profile row.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/auth"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/storage"
)

// State is an observable state of the gate.
type State string

const (
	StateResolving       State = "resolving"
	StateUnauthenticated State = "unauthenticated"
	StateNoProfile       State = "authenticated-no-profile"
	StateReady           State = "authenticated-with-profile"
)

// Result is one resolution of the gate. Identity is set from StateNoProfile
// on, Profile only in StateReady.
type Result struct {
	State    State             `json:"state"`
	Identity *profile.Identity `json:"user,omitempty"`
	Profile  *profile.Profile  `json:"profile,omitempty"`
}

// Ready reports whether the chat may be shown.
func (r Result) Ready() bool {
	return r.State == StateReady
}

// Gate resolves sessions against the auth provider and the users table.
type Gate struct {
	auth     auth.Provider
	profiles storage.ProfileRepository
	logger   *zap.Logger
}

// NewGate constructs a gate.
func NewGate(provider auth.Provider, profiles storage.ProfileRepository, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{auth: provider, profiles: profiles, logger: logger.Named("gate")}
}

// Resolve determines the state for token from scratch.
func (g *Gate) Resolve(ctx context.Context, token string) Result {
	identity, err := g.auth.Session(ctx, token)
	if err != nil {
		g.logger.Warn("session lookup failed", zap.Error(err))
		return Result{State: StateUnauthenticated}
	}
	if identity == nil {
		return Result{State: StateUnauthenticated}
	}

	p, err := g.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		g.logger.Debug("no profile for user", zap.String("user_id", identity.ID), zap.Error(err))
		return Result{State: StateNoProfile, Identity: identity}
	}
	return Result{State: StateReady, Identity: identity, Profile: &p}
}

// Watch emits StateResolving followed by the resolved result, then repeats
// both on every session-change event that concerns token. It returns when ctx
// is done or the event feed closes.
func (g *Gate) Watch(ctx context.Context, token string, emit func(Result)) error {
	events, err := g.auth.Subscribe(ctx)
	if err != nil {
		return err
	}

	userID := g.resolveAndEmit(ctx, token, emit)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !concerns(event, token, userID) {
				continue
			}
			userID = g.resolveAndEmit(ctx, token, emit)
		}
	}
}

func (g *Gate) resolveAndEmit(ctx context.Context, token string, emit func(Result)) string {
	emit(Result{State: StateResolving})
	result := g.Resolve(ctx, token)
	emit(result)
	if result.Identity != nil {
		return result.Identity.ID
	}
	return ""
}

// concerns reports whether event may change the state seen by token.
func concerns(event auth.Event, token, userID string) bool {
	if event.Token == token {
		return true
	}
	return userID != "" && event.UserID == userID
}
