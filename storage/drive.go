package storage

// DriveType classifies a DriveInfo.
type DriveType string

const (
	DriveFixed     DriveType = "fixed"
	DriveRemovable DriveType = "removable"
	DriveNetwork   DriveType = "network"
)

// DriveInfo describes one storage volume available to the planner.
type DriveInfo struct {
	Mount            string
	TotalBytes       int64
	AvailableBytes   int64
	UsedBytes        int64
	Filesystem       string
	DriveType        DriveType
	IsSystemDrive    bool
	PerformanceScore float64
	ReadOnly         bool
	IsSSD            bool
}

// DriveEnumerator is the port consumed by the core to list local storage
// volumes; concrete OS-specific implementations live outside this module.
type DriveEnumerator interface {
	List() ([]DriveInfo, error)
}

const oneGiB = 1 << 30

// AnalyseSystemStorage filters out read-only drives, removable drives with
// under 1 GiB free, and networked drives, then sorts the remainder by
// (isSystemDrive desc, performanceScore desc, availableBytes desc).
func AnalyseSystemStorage(drives []DriveInfo) []DriveInfo {
	var kept []DriveInfo
	for _, d := range drives {
		if d.ReadOnly {
			continue
		}
		if d.DriveType == DriveRemovable && d.AvailableBytes < oneGiB {
			continue
		}
		if d.DriveType == DriveNetwork {
			continue
		}
		kept = append(kept, d)
	}

	sortDrives(kept)
	return kept
}

func sortDrives(drives []DriveInfo) {
	for i := 1; i < len(drives); i++ {
		for j := i; j > 0 && lessDrive(drives[j], drives[j-1]); j-- {
			drives[j], drives[j-1] = drives[j-1], drives[j]
		}
	}
}

// lessDrive reports whether a should sort before b: system drives first,
// then by descending performance score, then by descending available bytes.
func lessDrive(a, b DriveInfo) bool {
	if a.IsSystemDrive != b.IsSystemDrive {
		return a.IsSystemDrive
	}
	if a.PerformanceScore != b.PerformanceScore {
		return a.PerformanceScore > b.PerformanceScore
	}
	return a.AvailableBytes > b.AvailableBytes
}

type driveScoreInputs struct {
	isSystemDrive      bool
	freeFraction       float64
	isSSD              bool
	isRemovable        bool
	isModernFilesystem bool
}

// scorePerformance combines the weighted factors from spec §4.6, clamped to
// [0,1].
func scorePerformance(in driveScoreInputs) float64 {
	score := 0.0
	if in.isSystemDrive {
		score += 0.3
	}
	score += 0.4 * in.freeFraction
	if in.isSSD {
		score += 0.2
	}
	if in.isRemovable {
		score -= 0.1
	}
	if in.isModernFilesystem {
		score += 0.1
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func freeFraction(available, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(available) / float64(total)
}

// ScoreDrive computes and returns a PerformanceScore for d from its other
// fields (d itself is not modified), using modernFilesystem as an external hint the OS-specific
// enumerator supplies (this package has no way to introspect filesystem
// drivers itself).
func ScoreDrive(d DriveInfo, modernFilesystem bool) float64 {
	return scorePerformance(driveScoreInputs{
		isSystemDrive:      d.IsSystemDrive,
		freeFraction:       freeFraction(d.AvailableBytes, d.TotalBytes),
		isSSD:              d.IsSSD,
		isRemovable:        d.DriveType == DriveRemovable,
		isModernFilesystem: modernFilesystem,
	})
}
