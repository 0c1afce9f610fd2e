// Package memory implements sliding-window conversation memory over two
// ports: a durable message store and a volatile context cache.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
)

const (
	defaultWindowSize     = 15
	defaultCacheTTL       = 5 * time.Minute
	defaultCacheKeyPrefix = "conv:ctx:"
)

type Option func(*Service)

func WithWindowSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCacheKeyPrefix(prefix string) Option {
	return func(s *Service) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// Service is the memory implementation handed to the orchestrator.
type Service struct {
	store     contractx.MessageStore
	cache     contractx.ContextCache
	window    int
	ttl       time.Duration
	keyPrefix string
}

func NewService(store contractx.MessageStore, cache contractx.ContextCache, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("message store is required")
	}
	if cache == nil {
		cache = noopCache{}
	}

	s := &Service{
		store:     store,
		cache:     cache,
		window:    defaultWindowSize,
		ttl:       defaultCacheTTL,
		keyPrefix: defaultCacheKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// WindowSize is the configured context window.
func (s *Service) WindowSize() int {
	return s.window
}

// GetContext returns the most recent limit messages in chronological order
// (limit <= 0 means the configured window). The cache holds one serialized
// window per conversation; any cache problem degrades to a store read.
func (s *Service) GetContext(ctx context.Context, conversationID uuid.UUID, limit int) ([]storagex.Message, error) {
	if limit <= 0 || limit > s.window {
		limit = s.window
	}

	key := s.cacheKey(conversationID)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("context cache read failed")
	} else if ok {
		var window []storagex.Message
		if err := json.Unmarshal(raw, &window); err == nil {
			return tail(window, limit), nil
		}
		// Unreadable entry: drop it and fall through to the store.
		_ = s.cache.Delete(ctx, key)
	}

	window, err := s.store.LoadRecent(ctx, conversationID, s.window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrStorageUnavailable, err)
	}

	if raw, err := json.Marshal(window); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("context cache write failed")
		}
	}

	return tail(window, limit), nil
}

// Append writes one message durably, then invalidates the cached window.
// The cache entry is deleted, never patched: concurrent readers must always
// repopulate from the store after a write.
func (s *Service) Append(ctx context.Context, conversationID uuid.UUID, role storagex.Role, content string, meta storagex.MessageMeta) (*storagex.Message, error) {
	msg, err := s.store.InsertMessage(ctx, conversationID, role, content, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrStorageUnavailable, err)
	}

	if err := s.cache.Delete(ctx, s.cacheKey(conversationID)); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("context cache invalidation failed")
	}
	return msg, nil
}

// Close marks a conversation closed. Lifecycle changes also invalidate the
// cached window.
func (s *Service) Close(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.store.SetConversationStatus(ctx, conversationID, storagex.ConversationClosed); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrStorageUnavailable, err)
	}
	if err := s.cache.Delete(ctx, s.cacheKey(conversationID)); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("context cache invalidation failed")
	}
	return nil
}

func (s *Service) cacheKey(conversationID uuid.UUID) string {
	return s.keyPrefix + conversationID.String()
}

func tail(msgs []storagex.Message, limit int) []storagex.Message {
	if len(msgs) <= limit {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (noopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopCache) Delete(context.Context, string) error                     { return nil }
