package compress

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/a-h/provision/metrics"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"
)

const defaultMaxWorkers = 4

// CompressedFile records the outcome for one candidate.
type CompressedFile struct {
	Path             string
	Algorithm        Algorithm
	OriginalSize     int64
	CompressedSize   int64
	Ratio            float64
}

// Result is the aggregate outcome of a compression pass.
type Result struct {
	CompressedFiles    []CompressedFile
	OriginalTotalSize  int64
	CompressedTotalSize int64
	SpaceSaved         int64
	CompressionRatio   float64
	Duration           time.Duration
	Errors             []error
	Success            bool
}

// Engine runs the worker-pool compression pass described in spec.md §4.7.
type Engine struct {
	log           *slog.Logger
	maxWorkers    int
	zstdAvailable bool
	metrics       metrics.Metrics
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxWorkers overrides the default worker-pool size (4).
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithMetrics attaches an operational metrics sink; every counter call is a
// no-op on the zero-value metrics.Metrics{}, so this is optional.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs a compression Engine. zstd is always available through
// klauspost/compress, so SelectAlgorithm is called with zstdAvailable=true
// by default.
func New(log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{log: log, maxWorkers: defaultMaxWorkers, zstdAvailable: true, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run compresses every candidate among files, skipping any that don't meet
// IsCandidate, replacing qualifying originals atomically, and writing a
// sidecar metadata file for each.
func (e *Engine) Run(ctx context.Context, files []FileStat, opts CandidacyOptions) Result {
	start := e.now()
	opts.ZstdAvailable = e.zstdAvailable

	var candidates []FileStat
	for _, f := range files {
		if IsCandidate(f, opts, start) {
			candidates = append(candidates, f)
		}
	}

	results := make([]*CompressedFile, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for i, f := range candidates {
		i, f := i, f
		g.Go(func() error {
			cf, err := e.compressOne(gctx, f)
			if err != nil {
				errs[i] = err
				e.log.Error("compression failed", slog.String("path", f.Path), slog.Any("error", err))
				return nil
			}
			results[i] = cf
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i := range candidates {
		if errs[i] != nil {
			res.Errors = append(res.Errors, errs[i])
			continue
		}
		if results[i] == nil {
			continue
		}
		cf := *results[i]
		res.CompressedFiles = append(res.CompressedFiles, cf)
		res.OriginalTotalSize += cf.OriginalSize
		res.CompressedTotalSize += cf.CompressedSize
		e.metrics.IncrementCompression(ctx, string(cf.Algorithm), cf.OriginalSize-cf.CompressedSize)
	}

	res.SpaceSaved = res.OriginalTotalSize - res.CompressedTotalSize
	if res.OriginalTotalSize > 0 {
		res.CompressionRatio = float64(res.CompressedTotalSize) / float64(res.OriginalTotalSize)
	}
	res.Duration = e.now().Sub(start)
	res.Success = len(res.Errors) == 0
	return res
}

// compressOne compresses a single file, verifies the real ratio beats
// acceptableRatio, and atomically replaces the original with a sidecar
// recording enough to reverse the transform.
func (e *Engine) compressOne(ctx context.Context, f FileStat) (*CompressedFile, error) {
	algo := SelectAlgorithm(ext(f.Path), e.zstdAvailable)

	originalHash, err := hashFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("compress: hashing %s: %w", f.Path, err)
	}

	tmpPath := f.Path + ".tmp"
	compressedSize, err := compressFile(f.Path, tmpPath, algo)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("compress: compressing %s: %w", f.Path, err)
	}

	ratio := float64(compressedSize) / float64(f.Size)
	if ratio >= acceptableRatio {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("compress: %s: real ratio %.2f did not beat %.2f, skipped", f.Path, ratio, acceptableRatio)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("compress: replacing %s: %w", f.Path, err)
	}

	meta := Metadata{Algorithm: algo, OriginalSize: f.Size, OriginalSHA: originalHash, CompressedAt: e.now()}
	if err := writeSidecar(f.Path, meta); err != nil {
		return nil, fmt.Errorf("compress: writing sidecar for %s: %w", f.Path, err)
	}

	return &CompressedFile{
		Path:           f.Path,
		Algorithm:      algo,
		OriginalSize:   f.Size,
		CompressedSize: compressedSize,
		Ratio:          ratio,
	}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// compressFile streams src through algo's codec into dst, returning the
// compressed byte count.
func compressFile(src, dst string, algo Algorithm) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var written int64
	counter := &countingWriter{w: out, n: &written}

	switch algo {
	case AlgorithmGzip:
		w := gzip.NewWriter(counter)
		if _, err := io.Copy(w, in); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
	case AlgorithmXZ:
		w, err := xz.NewWriter(counter)
		if err != nil {
			return 0, err
		}
		if _, err := io.Copy(w, in); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
	case AlgorithmZstd:
		w, err := zstd.NewWriter(counter)
		if err != nil {
			return 0, err
		}
		if _, err := io.Copy(w, in); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("compress: unknown algorithm %q", algo)
	}

	return atomic.LoadInt64(&written), nil
}

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	atomic.AddInt64(c.n, int64(n))
	return n, err
}

func writeSidecar(originalPath string, meta Metadata) error {
	f, err := os.Create(sidecarPath(originalPath))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(meta)
}

// CleanupTempFiles deletes files older than one hour matching the
// compression engine's own temp-file patterns, under the given roots. This
// is orthogonal to download.CleanupTempFiles, which scans for `.tmp`
// download staging files, not compression or log scratch files.
func CleanupTempFiles(roots []string, now time.Time) (removed []string, errs []error) {
	patterns := []string{"*.tmp", "*.temp", "*.log", "*~", "*.bak", "*.old"}
	cutoff := now.Add(-1 * time.Hour)

	for _, root := range roots {
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, m := range matches {
				info, err := os.Stat(m)
				if err != nil {
					continue
				}
				if info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(m); err != nil {
					errs = append(errs, err)
					continue
				}
				removed = append(removed, m)
			}
		}
	}
	return removed, errs
}
