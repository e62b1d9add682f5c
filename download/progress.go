package download

// Progress is a DownloadProgress snapshot for a single in-flight URL.
type Progress struct {
	URL            string
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
	SpeedMbps      float64
	ETASeconds     float64
	Status         Status
	Error          error
}

// ProgressCallback receives a Progress snapshot. It must not block; the
// engine copies the snapshot and releases any internal lock before invoking
// it, per the shared-resource policy in spec §5.
type ProgressCallback func(Progress)

// IntegritySummary is produced pre-install for the caller: aggregate counts
// and the list of failed items.
type IntegritySummary struct {
	Completed     int
	Failed        int
	HashFailed    int
	SuccessRate   float64
	TotalSize     int64
	TotalTime     float64 // seconds
	AverageSpeed  float64 // Mbps
	FailedResults []Result
}

func summarise(results []Result) IntegritySummary {
	var s IntegritySummary
	var totalSeconds float64
	for _, r := range results {
		s.TotalSize += r.FileSize
		totalSeconds += r.DownloadTime.Seconds()
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusHashFailed:
			s.HashFailed++
			s.FailedResults = append(s.FailedResults, r)
		default:
			s.Failed++
			s.FailedResults = append(s.FailedResults, r)
		}
	}
	if len(results) > 0 {
		s.SuccessRate = float64(s.Completed) / float64(len(results)) * 100
	}
	s.TotalTime = totalSeconds
	if totalSeconds > 0 {
		s.AverageSpeed = (float64(s.TotalSize) * 8 / 1_000_000) / totalSeconds
	}
	return s
}

// ParallelDownloadResult aggregates a batch run by EnableParallelDownloads.
type ParallelDownloadResult struct {
	TotalDownloads       int
	Successful           int
	Failed               int
	Results              []Result
	Bytes                int64
	AvgSpeedMbps         float64
	BandwidthUtilisation float64
	IntegritySummary     IntegritySummary
}
