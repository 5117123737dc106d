package reconcile

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
)

// SessionState tracks where a view session is in the cache-then-refresh flow
type SessionState string

const (
	SessionIdle          SessionState = "idle"
	SessionCacheRendered SessionState = "cache_rendered"
	SessionRefreshing    SessionState = "refreshing"
	SessionRefreshed     SessionState = "refreshed"
)

// RenderFunc receives each snapshot the session decides to surface. fromCache
// distinguishes the instant cached render from the refreshed one.
type RenderFunc func(result *domain.Reconciliation, fromCache bool)

// Session drives one cache-then-refresh view of a (wallet, token) pair: the
// cached result renders immediately when present, a full evaluation follows,
// and the refreshed result only replaces the rendered one when it
// meaningfully differs. Cancelling the session discards any in-flight refresh
// result instead of rendering it.
type Session struct {
	pipeline Pipeline
	wallet   string
	tokenKey domain.TokenKey

	mu        sync.Mutex
	state     SessionState
	cancelled bool
}

// NewSession creates a session in the idle state
func NewSession(pipeline Pipeline, walletAddress string, tokenKey domain.TokenKey) *Session {
	return &Session{
		pipeline: pipeline,
		wallet:   domain.NormalizeAddress(walletAddress),
		tokenKey: tokenKey,
		state:    SessionIdle,
	}
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel marks the session cancelled. A refresh already in flight keeps
// running but its result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// transition moves to next unless the session was cancelled
func (s *Session) transition(next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.state = next
	return true
}

// Run executes the cache-then-refresh flow. It returns the result the viewer
// ends up seeing. An error is only returned when nothing could be rendered at
// all: a refresh failure behind an already-rendered cache entry is logged and
// the cached result stands.
func (s *Session) Run(ctx context.Context, render RenderFunc) (*domain.Reconciliation, error) {
	cached, haveCache := s.pipeline.EvaluateCached(ctx, s.wallet, s.tokenKey)
	if haveCache {
		if !s.transition(SessionCacheRendered) {
			return nil, domain.ErrRefreshCancelled
		}
		render(cached, true)
	}

	if !s.transition(SessionRefreshing) {
		if haveCache {
			return cached, nil
		}
		return nil, domain.ErrRefreshCancelled
	}

	fresh, err := s.pipeline.Evaluate(ctx, s.wallet, s.tokenKey)
	if err != nil {
		if haveCache {
			logger.WarnCtx(ctx, "refresh failed, keeping cached result",
				zap.String("token_key", s.tokenKey.String()), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	if !s.transition(SessionRefreshed) {
		if haveCache {
			return cached, nil
		}
		return nil, domain.ErrRefreshCancelled
	}

	// Re-rendering an identical snapshot just causes visual churn
	if !haveCache || meaningfullyDiffers(cached, fresh) {
		render(fresh, false)
	}

	return fresh, nil
}

// meaningfullyDiffers reports whether the refreshed reconciliation would
// change what the viewer sees
func meaningfullyDiffers(prev, next *domain.Reconciliation) bool {
	if prev == nil || next == nil {
		return prev != next
	}

	if prev.Position.State != next.Position.State {
		return true
	}
	if prev.Match.Method != next.Match.Method {
		return true
	}
	if !sameQuality(prev.Position.DataQuality, next.Position.DataQuality) {
		return true
	}
	if !sameDecimal(prev.AcquisitionPrice, next.AcquisitionPrice) {
		return true
	}
	if !sameDecimal(prev.Position.MarketReference, next.Position.MarketReference) {
		return true
	}
	if !sameDecimal(prev.Position.PnLRatio, next.Position.PnLRatio) {
		return true
	}

	return false
}

func sameQuality(a, b *domain.DataQuality) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Sub(*b).Abs().LessThanOrEqual(epsilon)
}
