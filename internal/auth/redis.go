package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
)

const (
	userKeyPrefix    = "auth:user:"
	sessionKeyPrefix = "auth:session:"
	eventsChannel    = "auth:events"
)

// RedisProvider keeps credentials and sessions in Redis and fans out
// session-change events over Pub/Sub so every API instance sees them.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider connects to url and verifies the connection.
func NewRedisProvider(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*RedisProvider, error) {
	if url == "" {
		return nil, errors.New("redis: REDIS_URL is not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisProvider{client: client, ttl: ttl, logger: logger.Named("auth")}, nil
}

// Close releases the Redis client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) Session(ctx context.Context, token string) (*profile.Identity, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := p.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session: %w", err)
	}

	var identity profile.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("redis: decode session: %w", err)
	}
	return &identity, nil
}

func (p *RedisProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}

	identity := profile.Identity{ID: uuid.NewString(), Email: normalized}
	key := userKeyPrefix + normalized

	if err := p.register(ctx, key, identity, hash); err != nil {
		return Session{}, err
	}

	return p.issue(ctx, identity)
}

// register writes the user hash in a single MULTI/EXEC guarded by WATCH, so a
// record is either complete or absent. A record without a password hash is
// treated as free and overwritten.
func (p *RedisProvider) register(ctx context.Context, key string, identity profile.Identity, hash []byte) error {
	err := p.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.HGet(ctx, key, "hash").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis: load user: %w", err)
		}
		if existing != "" {
			return ErrEmailTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, "id", identity.ID, "email", identity.Email, "hash", string(hash))
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("redis: store user: %w", err)
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrEmailTaken
	}
	return err
}

func (p *RedisProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	fields, err := p.client.HGetAll(ctx, userKeyPrefix+normalized).Result()
	if err != nil {
		return Session{}, fmt.Errorf("redis: load user: %w", err)
	}
	if fields["id"] == "" || fields["hash"] == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(fields["hash"]), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return p.issue(ctx, profile.Identity{ID: fields["id"], Email: normalized})
}

func (p *RedisProvider) SignOut(ctx context.Context, token string) error {
	raw, err := p.client.GetDel(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}

	var identity profile.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		p.logger.Warn("signed out session with unreadable identity", zap.Error(err))
	}
	p.publish(ctx, Event{Kind: EventSignedOut, UserID: identity.ID, Token: token})
	return nil
}

func (p *RedisProvider) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := p.client.Subscribe(ctx, eventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.logger.Warn("dropping malformed auth event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (p *RedisProvider) issue(ctx context.Context, identity profile.Identity) (Session, error) {
	session := Session{Token: uuid.NewString(), Identity: identity}

	raw, err := json.Marshal(identity)
	if err != nil {
		return Session{}, err
	}
	if err := p.client.Set(ctx, sessionKeyPrefix+session.Token, raw, p.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("redis: store session: %w", err)
	}

	p.publish(ctx, Event{Kind: EventSignedIn, UserID: identity.ID, Token: session.Token})
	return session, nil
}

func (p *RedisProvider) publish(ctx context.Context, event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, eventsChannel, raw).Err(); err != nil {
		p.logger.Warn("failed to publish auth event", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}
