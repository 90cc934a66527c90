package sluice

import (
	"context"
	"io"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Throttled Store
// -----------------------------------------------------------------------------

// ThrottleConfig holds request limits for a throttled store.
type ThrottleConfig struct {
	// RequestsPerSecond caps the request rate across all operations.
	// If 0, the rate is unlimited.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. If 0, defaults to 1 when a
	// rate is configured.
	Burst int

	// MaxInFlight caps concurrent requests. If 0, concurrency is unlimited.
	MaxInFlight int64
}

// throttledStore wraps a Store with request rate and concurrency limits.
type throttledStore struct {
	inner   Store
	limiter *rate.Limiter       // nil if unlimited
	sem     *semaphore.Weighted // nil if unlimited
}

// NewThrottledStore wraps inner so every operation waits for rate and
// concurrency budget before reaching the backend. Record scans fan out one
// request per partition and object; throttling keeps a wide scan inside a
// provider's request quotas.
//
// In-flight accounting covers the store call itself, not the lifetime of
// readers returned by Get.
func NewThrottledStore(inner Store, cfg ThrottleConfig) Store {
	t := &throttledStore{inner: inner}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.MaxInFlight > 0 {
		t.sem = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	return t
}

// acquire blocks until the request may proceed. The returned release must be
// called once the backend call finishes.
func (t *throttledStore) acquire(ctx context.Context) (func(), error) {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if t.sem != nil {
				t.sem.Release(1)
			}
			return nil, err
		}
	}
	if t.sem == nil {
		return func() {}, nil
	}
	return func() { t.sem.Release(1) }, nil
}

func (t *throttledStore) Put(ctx context.Context, key string, r io.Reader) error {
	release, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return t.inner.Put(ctx, key, r)
}

func (t *throttledStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.inner.Get(ctx, key)
}

func (t *throttledStore) Exists(ctx context.Context, key string) (bool, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return t.inner.Exists(ctx, key)
}

func (t *throttledStore) Delete(ctx context.Context, key string) error {
	release, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return t.inner.Delete(ctx, key)
}

func (t *throttledStore) ListObjects(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.inner.ListObjects(ctx, prefix)
}

func (t *throttledStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.inner.ListPrefixes(ctx, prefix)
}
