package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
)

type memoryUser struct {
	identity profile.Identity
	hash     []byte
}

// MemoryProvider keeps users and sessions in process memory.
type MemoryProvider struct {
	mu          sync.RWMutex
	users       map[string]memoryUser
	sessions    map[string]profile.Identity
	subscribers map[chan Event]struct{}
	cost        int
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		users:       make(map[string]memoryUser),
		sessions:    make(map[string]profile.Identity),
		subscribers: make(map[chan Event]struct{}),
		cost:        bcrypt.DefaultCost,
	}
}

func (p *MemoryProvider) Session(_ context.Context, token string) (*profile.Identity, error) {
	if token == "" {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	identity, ok := p.sessions[token]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (p *MemoryProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Session{}, err
	}

	p.mu.Lock()
	if _, ok := p.users[normalized]; ok {
		p.mu.Unlock()
		return Session{}, ErrEmailTaken
	}
	identity := profile.Identity{ID: uuid.NewString(), Email: normalized}
	p.users[normalized] = memoryUser{identity: identity, hash: hash}
	p.mu.Unlock()

	return p.issue(identity), nil
}

func (p *MemoryProvider) SignIn(_ context.Context, email, password string) (Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	p.mu.RLock()
	user, ok := p.users[normalized]
	p.mu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return p.issue(user.identity), nil
}

func (p *MemoryProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	identity, ok := p.sessions[token]
	delete(p.sessions, token)
	p.mu.Unlock()

	if ok {
		p.publish(Event{Kind: EventSignedOut, UserID: identity.ID, Token: token})
	}
	return nil
}

func (p *MemoryProvider) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subscribers, ch)
		close(ch)
		p.mu.Unlock()
	}()

	return ch, nil
}

func (p *MemoryProvider) issue(identity profile.Identity) Session {
	session := Session{Token: uuid.NewString(), Identity: identity}

	p.mu.Lock()
	p.sessions[session.Token] = identity
	p.mu.Unlock()

	p.publish(Event{Kind: EventSignedIn, UserID: identity.ID, Token: session.Token})
	return session
}

// publish drops events for subscribers whose buffer is full.
func (p *MemoryProvider) publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for ch := range p.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
