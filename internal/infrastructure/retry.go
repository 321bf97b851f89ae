package infrastructure

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBackoffFactor = 2.0
	defaultMinJitter     = 100 * time.Millisecond
	defaultMaxJitter     = 1 * time.Second
)

// retryPolicy is the exponential backoff with jitter shared by every
// upstream connection of the gateway.
type retryPolicy struct {
	maxRetry  int
	factor    float64
	minJitter time.Duration
	maxJitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func newRetryPolicy(maxRetry int, factor float64, minJitter, maxJitter time.Duration) *retryPolicy {
	if maxRetry < 0 {
		maxRetry = 0
	}
	if factor < 1 {
		factor = defaultBackoffFactor
	}
	if minJitter <= 0 {
		minJitter = defaultMinJitter
	}
	if maxJitter <= 0 {
		maxJitter = defaultMaxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}

	return &retryPolicy{
		maxRetry:  maxRetry,
		factor:    factor,
		minJitter: minJitter,
		maxJitter: maxJitter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *retryPolicy) delay(attempt int) time.Duration {
	backoff := float64(p.minJitter) * math.Pow(p.factor, float64(attempt))
	if backoff > float64(p.maxJitter) {
		backoff = float64(p.maxJitter)
	}

	base := time.Duration(backoff)
	if p.maxJitter <= p.minJitter {
		return base
	}

	p.mu.Lock()
	jitter := time.Duration(p.rng.Int63n(int64(p.maxJitter-p.minJitter) + 1))
	p.mu.Unlock()

	if result := base + jitter; result < p.maxJitter {
		return result
	}
	return p.maxJitter
}

// do calls fn until it succeeds, the retries run out or ctx is done.
func (p *retryPolicy) do(ctx context.Context, target string, attemptTimeout time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == p.maxRetry {
			break
		}

		wait := p.delay(attempt)
		logrus.WithFields(logrus.Fields{
			"attempt":   attempt + 1,
			"max_retry": p.maxRetry,
			"retry_in":  wait.String(),
			"target":    target,
		}).Warnf("connection failed: %v", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("connect %s after %d attempts: %w", target, p.maxRetry+1, lastErr)
}

func maskDSN(dsn string) string {
	idx := strings.LastIndex(dsn, "@")
	if idx == -1 {
		return dsn
	}

	prefix := dsn[:idx]
	credsIdx := strings.LastIndex(prefix, "://")
	if credsIdx == -1 {
		return "***" + dsn[idx:]
	}

	return prefix[:credsIdx+3] + "***" + dsn[idx:]
}
