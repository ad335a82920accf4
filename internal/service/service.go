// Package service is the request-level facade over the ledger: it resolves
// the acting user, validates request payloads, fills catalog defaults,
// replays idempotent orders and writes the audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"posledger/backend/internal/cache"
	"posledger/backend/internal/domain"
	"posledger/backend/internal/ledger"
	"posledger/backend/internal/logger"
	"posledger/backend/internal/metrics"
	"posledger/backend/internal/store"
)

var ErrUnauthenticated = errors.New("authenticated user required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	ledger         *ledger.Ledger
	orders         cache.OrderCache
	log            *zap.Logger
	metrics        *metrics.Metrics
	validate       *validator.Validate
	idempotencyTTL time.Duration
	lowStockLimit  int
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func WithLowStockLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.lowStockLimit = limit
		}
	}
}

func New(repo store.Repository, l *ledger.Ledger, orders cache.OrderCache, opts ...Option) *Service {
	if orders == nil {
		orders = cache.NoopOrderCache{}
	}
	s := &Service{
		repo:           repo,
		ledger:         l,
		orders:         orders,
		log:            zap.NewNop(),
		validate:       newValidator(),
		idempotencyTTL: 10 * time.Minute,
		lowStockLimit:  50,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID <= 0 {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// logAudit records a successful mutation. A failed write is logged and
// never fails the operation that triggered it.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID:   actor.UserID,
		ActorUsername: actor.Username,
		Action:        action,
		EntityType:    entityType,
		EntityID:      strconv.FormatInt(entityID, 10),
		Detail:        detail,
		CreatedAt:     s.now(),
	})
	if err != nil {
		logger.FromContext(ctx, s.log).Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", fmt.Sprintf("%s/%d", entityType, entityID)),
			zap.Error(err),
		)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func clampLimit(limit int, fallback int, max int) int {
	if limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
