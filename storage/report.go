package storage

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// DriveReport renders a human-readable one-line summary of a drive, using
// github.com/dustin/go-humanize for byte formatting, per SPEC_FULL's
// reporting/export wiring.
func DriveReport(d DriveInfo) string {
	return fmt.Sprintf("%s: %s free of %s (%s), score %.2f",
		d.Mount, humanize.Bytes(uint64(d.AvailableBytes)), humanize.Bytes(uint64(d.TotalBytes)),
		d.DriveType, d.PerformanceScore)
}

// SelectiveInstallReport renders a human-readable summary of a
// SelectiveInstallPlan: what will install, what's skipped, and how much
// space skipping saves.
func SelectiveInstallReport(plan SelectiveInstallPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "installable: %d component(s)\n", len(plan.Installable))
	for _, name := range plan.Installable {
		fmt.Fprintf(&b, "  + %s\n", name)
	}
	if len(plan.Skipped) > 0 {
		fmt.Fprintf(&b, "skipped: %d component(s), %s saved\n", len(plan.Skipped), humanize.Bytes(uint64(plan.SpaceSaved)))
		for _, name := range plan.Skipped {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	for _, rec := range plan.Recommendations {
		fmt.Fprintf(&b, "note: %s\n", rec)
	}
	return b.String()
}

// DistributionReport renders a human-readable summary of a DistributionPlan.
func DistributionReport(plan DistributionPlan) string {
	var b strings.Builder
	for _, a := range plan.Assignments {
		fmt.Fprintf(&b, "%s -> %s\n", a.Name, a.Mount)
	}
	if len(plan.Unplaced) > 0 {
		fmt.Fprintf(&b, "unplaced: %v\n", plan.Unplaced)
	}
	for _, w := range plan.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}

// SpaceRequirementReport renders a single component's computed footprint in
// human-readable byte sizes.
func SpaceRequirementReport(req SpaceRequirement) string {
	return fmt.Sprintf("%s: download %s, install %s, temp %s, total %s (recommend %s free)",
		req.Name,
		humanize.Bytes(uint64(req.DownloadSize)),
		humanize.Bytes(uint64(req.InstallationSize)),
		humanize.Bytes(uint64(req.TemporarySpace)),
		humanize.Bytes(uint64(req.TotalRequired)),
		humanize.Bytes(uint64(req.RecommendedFree)))
}
