package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
	"github.com/sony/gobreaker"
)

// ErrStoreUnavailable is returned while the breaker is open.
var ErrStoreUnavailable = errors.New("artifact store unavailable")

// BreakerConfig configures WithBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
	Logger      *slog.Logger
	// OnStateChange, if set, is called after every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// BreakerStore guards a remote Store with a circuit breaker. Unknown models
// and canceled contexts do not count as failures.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

var _ Store = (*BreakerStore)(nil)

// WithBreaker wraps inner with a circuit breaker.
func WithBreaker(name string, inner Store, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, models.ErrArtifactNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("artifact store breaker state changed", "store", name, "from", from.String(), "to", to.String())
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

// State returns the current breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) do(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return v, err
}

func (b *BreakerStore) FetchModel(ctx context.Context, modelID string) (*models.Handle, error) {
	v, err := b.do(func() (any, error) { return b.inner.FetchModel(ctx, modelID) })
	if err != nil {
		return nil, err
	}
	return v.(*models.Handle), nil
}

func (b *BreakerStore) FetchHeldOutSplit(ctx context.Context, modelID string) (*dataset.Split, error) {
	v, err := b.do(func() (any, error) { return b.inner.FetchHeldOutSplit(ctx, modelID) })
	if err != nil {
		return nil, err
	}
	return v.(*dataset.Split), nil
}
