package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/a-h/provision/mirror"
)

// DownloadWithRetry runs the exponential-backoff retry sequence against a
// single URL. Attempt k's pre-attempt delay is 2^(k-1) + jitter(0.1, 0.5)
// seconds for k >= 1; attempt 0 runs immediately. Retry triggers on
// transport errors, non-200 responses, and hash failures; a bad scheme
// fails immediately without retrying.
func (e *Engine) DownloadWithRetry(ctx context.Context, req Request) Result {
	return e.downloadWithRetry(ctx, req, nil)
}

// downloadWithRetry is DownloadWithRetry with an optional onAttemptFailed
// hook, invoked once per failed attempt (not once per URL), so callers that
// account per-attempt failures - like DownloadWithMirrorFallback's mirror
// registry - see every attempt, not just the final exhausted one.
func (e *Engine) downloadWithRetry(ctx context.Context, req Request, onAttemptFailed func()) Result {
	var last Result
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, e.rand())
			e.log.Debug("download: retrying after backoff", slog.String("url", req.URL), slog.Int("attempt", attempt), slog.Duration("delay", delay))
			if err := e.sleep(ctx, delay); err != nil {
				last.Status = StatusFailed
				last.Error = err
				return last
			}
		}

		last = e.Download(ctx, req)
		if last.Status == StatusCompleted {
			return last
		}
		if onAttemptFailed != nil {
			onAttemptFailed()
		}
		if errors.Is(last.Error, ErrBadScheme) {
			return last
		}
	}
	last.Error = fmt.Errorf("%s: %w: %v", req.URL, ErrRetryExhausted, last.Error)
	return last
}

// backoffDelay returns 2^(k-1) + jitter(0.1, 0.5) seconds for attempt k >= 1.
func backoffDelay(attempt int, r float64) time.Duration {
	base := math.Pow(2, float64(attempt-1))
	jitter := 0.1 + r*0.4 // r in [0,1) maps jitter onto [0.1, 0.5)
	return time.Duration((base + jitter) * float64(time.Second))
}

// DownloadWithMirrorFallback tries the full retry sequence against req.URL,
// then against each of req.Mirrors in order, updating registry success and
// failure counts as it goes. It returns the first completed Result, or the
// last failed Result wrapped in ErrRetryExhausted once every candidate has
// been exhausted.
func (e *Engine) DownloadWithMirrorFallback(ctx context.Context, req Request, registry *mirror.Registry) Result {
	candidates := append([]string{req.URL}, req.Mirrors...)

	var last Result
	for i, url := range candidates {
		attemptReq := req
		attemptReq.URL = url
		if i > 0 {
			last.Status = StatusMirrorFallback
		}

		start := e.now()
		result := e.downloadWithRetry(ctx, attemptReq, func() {
			if registry != nil {
				registry.RecordFailure(url)
			}
		})
		elapsed := e.now().Sub(start)

		if registry != nil && result.Status == StatusCompleted {
			registry.RecordSuccess(url, elapsed)
		}

		if result.Status == StatusCompleted {
			return result
		}
		last = result
	}

	last.Status = StatusFailed
	last.Error = fmt.Errorf("%s: %w", req.URL, ErrRetryExhausted)
	return last
}
