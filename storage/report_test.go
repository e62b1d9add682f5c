package storage

import (
	"strings"
	"testing"
)

func TestDriveReportIncludesHumanReadableSizes(t *testing.T) {
	d := DriveInfo{Mount: "/", TotalBytes: 100 * 1 << 30, AvailableBytes: 40 * 1 << 30, DriveType: DriveFixed, PerformanceScore: 0.82}
	report := DriveReport(d)
	if !strings.Contains(report, "GB") {
		t.Fatalf("expected human-readable GB size, got %q", report)
	}
}

func TestSelectiveInstallReportListsSkipped(t *testing.T) {
	plan := SelectiveInstallPlan{
		Installable: []string{"git"},
		Skipped:     []string{"heavy-ide"},
		SpaceSaved:  5 * 1 << 30,
	}
	report := SelectiveInstallReport(plan)
	if !strings.Contains(report, "heavy-ide") || !strings.Contains(report, "git") {
		t.Fatalf("expected both components in report, got %q", report)
	}
}
