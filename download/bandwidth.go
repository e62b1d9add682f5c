package download

import (
	"sync"
	"time"
)

// defaultBaselineMbps is the advisory baseline against which utilisation is
// reported; it never gates correctness, only informs callers.
const defaultBaselineMbps = 100.0

// BandwidthStatistics is the snapshot returned by BandwidthMonitor.Statistics,
// mirroring the original tool's BandwidthMonitor.get_statistics dataclass.
type BandwidthStatistics struct {
	TotalBytes   int64
	Elapsed      time.Duration
	AverageMbps  float64
	PeakMbps     float64
	Utilisation  float64 // percentage of the configured baseline
}

// BandwidthMonitor is a thread-safe accumulator of download throughput.
// Errors inside it never propagate: every method here is infallible by
// construction, per spec §5's "guaranteed never to throw" clause.
type BandwidthMonitor struct {
	mu        sync.Mutex
	totalBytes int64
	started   time.Time
	peakMbps  float64
	baseline  float64
	now       func() time.Time
}

// NewBandwidthMonitor constructs a monitor with the default baseline.
func NewBandwidthMonitor() *BandwidthMonitor {
	return &BandwidthMonitor{baseline: defaultBaselineMbps, now: time.Now}
}

// record folds one completed transfer's size and duration into the running
// totals. Never returns an error; a zero or negative duration is ignored for
// speed purposes but still counts toward total bytes.
func (b *BandwidthMonitor) record(bytes int64, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started.IsZero() {
		b.started = b.now()
	}
	b.totalBytes += bytes

	if duration > 0 {
		mbps := (float64(bytes) * 8 / 1_000_000) / duration.Seconds()
		if mbps > b.peakMbps {
			b.peakMbps = mbps
		}
	}
}

// Statistics returns a snapshot of the accumulated totals.
func (b *BandwidthMonitor) Statistics() BandwidthStatistics {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := time.Duration(0)
	if !b.started.IsZero() {
		elapsed = b.now().Sub(b.started)
	}

	var avg float64
	if elapsed > 0 {
		avg = (float64(b.totalBytes) * 8 / 1_000_000) / elapsed.Seconds()
	}

	var utilisation float64
	if b.baseline > 0 {
		utilisation = (avg / b.baseline) * 100
	}

	return BandwidthStatistics{
		TotalBytes:  b.totalBytes,
		Elapsed:     elapsed,
		AverageMbps: avg,
		PeakMbps:    b.peakMbps,
		Utilisation: utilisation,
	}
}
