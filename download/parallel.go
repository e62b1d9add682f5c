package download

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentDownloads = 4

// EnableParallelDownloads runs up to maxConcurrentDownloads (default 4)
// downloads concurrently via errgroup, invoking progressCallback on each
// request's terminal state. A request's own failure never aborts the
// others; the aggregate is always returned once every goroutine completes.
func (e *Engine) EnableParallelDownloads(ctx context.Context, requests []Request, maxConcurrent int, progress ProgressCallback) ParallelDownloadResult {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentDownloads
	}

	results := make([]Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			result := e.DownloadWithRetry(gctx, req)
			results[i] = result
			if progress != nil {
				progress(Progress{
					URL:            req.URL,
					TotalSize:      result.FileSize,
					DownloadedSize: result.FileSize,
					Percent:        percentFor(result),
					Status:         result.Status,
					Error:          result.Error,
				})
			}
			// A single request's failure must not cancel its siblings; the
			// engine's contract is "any download call may fail" at the
			// per-item level, not at the batch level, so this goroutine
			// always returns nil.
			return nil
		})
	}
	_ = g.Wait()

	out := ParallelDownloadResult{
		TotalDownloads:   len(requests),
		Results:          results,
		IntegritySummary: summarise(results),
	}
	for _, r := range results {
		out.Bytes += r.FileSize
		if r.Status == StatusCompleted {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	out.AvgSpeedMbps = out.IntegritySummary.AverageSpeed
	out.BandwidthUtilisation = e.bandwidth.Statistics().Utilisation
	return out
}

func percentFor(r Result) float64 {
	if r.Status == StatusCompleted {
		return 100
	}
	return 0
}
