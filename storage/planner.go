package storage

import "sort"

// Priority is a component's installation priority, used by both the
// selective-install bin-pack and the multi-drive distribution plan.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityOptional Priority = "optional"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
	PriorityOptional: 4,
}

// ComponentRequest is one component under consideration by the planner.
type ComponentRequest struct {
	Name         string
	Priority     Priority
	DownloadSize int64
	LastUsed     int64 // unix seconds; used only by removal suggestions
}

// SpaceRequirement is the computed footprint of one component.
type SpaceRequirement struct {
	Name             string
	DownloadSize     int64
	InstallationSize int64
	TemporarySpace   int64
	TotalRequired    int64
	RecommendedFree  int64
}

// ComputeSpaceRequirement derives a component's full footprint from its
// download size alone: installation defaults to 2x download, temporary
// space is the larger of download size and half of installation size.
func ComputeSpaceRequirement(downloadSize int64) SpaceRequirement {
	installation := downloadSize * 2
	half := installation / 2
	temporary := downloadSize
	if half > temporary {
		temporary = half
	}
	total := downloadSize + installation + temporary
	return SpaceRequirement{
		DownloadSize:     downloadSize,
		InstallationSize: installation,
		TemporarySpace:   temporary,
		TotalRequired:    total,
		RecommendedFree:  int64(float64(total) * 1.2),
	}
}

// SelectiveInstallPlan is the outcome of bin-packing components into an
// available-byte budget.
type SelectiveInstallPlan struct {
	Installable          []string
	Skipped              []string
	SpaceSaved           int64
	InstallationFeasible bool
	Recommendations      []string
}

// PlanSelectiveInstall sorts components by (priority, totalRequired asc) and
// greedily includes them until availableBytes is exhausted.
func PlanSelectiveInstall(components []ComponentRequest, availableBytes int64) SelectiveInstallPlan {
	type sized struct {
		req   ComponentRequest
		space SpaceRequirement
	}

	sizedComponents := make([]sized, len(components))
	for i, c := range components {
		sizedComponents[i] = sized{req: c, space: ComputeSpaceRequirement(c.DownloadSize)}
	}

	sort.SliceStable(sizedComponents, func(i, j int) bool {
		pi, pj := priorityRank[sizedComponents[i].req.Priority], priorityRank[sizedComponents[j].req.Priority]
		if pi != pj {
			return pi < pj
		}
		return sizedComponents[i].space.TotalRequired < sizedComponents[j].space.TotalRequired
	})

	var plan SelectiveInstallPlan
	remaining := availableBytes
	var skippedCritical, skippedHigh bool

	for _, sc := range sizedComponents {
		if sc.space.TotalRequired <= remaining {
			plan.Installable = append(plan.Installable, sc.req.Name)
			remaining -= sc.space.TotalRequired
			continue
		}
		plan.Skipped = append(plan.Skipped, sc.req.Name)
		plan.SpaceSaved += sc.space.TotalRequired
		switch sc.req.Priority {
		case PriorityCritical:
			skippedCritical = true
		case PriorityHigh:
			skippedHigh = true
		}
	}

	plan.InstallationFeasible = len(plan.Installable) > 0
	if skippedCritical {
		plan.Recommendations = append(plan.Recommendations, "critical components were skipped; free more space before proceeding")
	}
	if skippedHigh {
		plan.Recommendations = append(plan.Recommendations, "high-priority components were skipped")
	}
	return plan
}

// DistributionAssignment places one component on one drive.
type DistributionAssignment struct {
	Name  string
	Mount string
}

// DistributionPlan is the outcome of the multi-drive distribution pass.
type DistributionPlan struct {
	Assignments          []DistributionAssignment
	Unplaced             []string
	Warnings             []string
	DistributionFeasible bool
}

// PlanDistribution sorts components by (priority asc, size desc) and assigns
// each to the best-scoring drive with enough remaining space, tracking
// consumption across assignments so later components see drives already
// partially filled by earlier ones.
func PlanDistribution(components []ComponentRequest, drives []DriveInfo) DistributionPlan {
	sorted := append([]ComponentRequest(nil), components...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priorityRank[sorted[i].Priority], priorityRank[sorted[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return sorted[i].DownloadSize > sorted[j].DownloadSize
	})

	remaining := make([]int64, len(drives))
	for i, d := range drives {
		remaining[i] = d.AvailableBytes
	}

	var plan DistributionPlan
	for _, c := range sorted {
		req := ComputeSpaceRequirement(c.DownloadSize)
		best := -1
		bestScore := -1.0
		for i, d := range drives {
			if remaining[i] < req.TotalRequired {
				continue
			}
			score := distributionScore(d, remaining[i], c.Priority)
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			plan.Unplaced = append(plan.Unplaced, c.Name)
			plan.Warnings = append(plan.Warnings, "no drive had enough free space for "+c.Name)
			continue
		}
		plan.Assignments = append(plan.Assignments, DistributionAssignment{Name: c.Name, Mount: drives[best].Mount})
		remaining[best] -= req.TotalRequired
	}

	plan.DistributionFeasible = len(plan.Unplaced) == 0
	return plan
}

// distributionScore combines performance, remaining free fraction, inverse
// usage, and a priority bias favouring the system drive for critical
// components and non-system drives otherwise.
func distributionScore(d DriveInfo, remainingBytes int64, priority Priority) float64 {
	free := freeFraction(remainingBytes, d.TotalBytes)
	usage := 1.0
	if d.TotalBytes > 0 {
		usage = float64(d.UsedBytes) / float64(d.TotalBytes)
	}

	bias := 0.0
	switch {
	case priority == PriorityCritical && d.IsSystemDrive:
		bias = 0.1
	case priority != PriorityCritical && !d.IsSystemDrive:
		bias = 0.05
	}

	return 0.4*d.PerformanceScore + 0.3*free + 0.2*(1-usage) + bias
}

// Impact and Safety classify a removal candidate.
type Impact string
type Safety string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"

	SafetySafe    Safety = "safe"
	SafetyCaution Safety = "caution"
	SafetyRisky   Safety = "risky"
)

// InstalledComponent is a component already on disk, considered for removal
// to free space toward a deficit.
type InstalledComponent struct {
	Name     string
	Priority Priority
	Size     int64
	LastUsed int64
}

// RemovalSuggestion is one candidate removal with its estimated effects.
type RemovalSuggestion struct {
	Name        string
	Freed       int64
	Impact      Impact
	Safety      Safety
	Description string
}

// RemovalPlan is the outcome of planning removals to cover a space deficit.
type RemovalPlan struct {
	Candidates          []RemovalSuggestion
	RecommendedRemovals []string
}

// PlanRemovals sorts installed components by (priority desc so optional
// first, size desc, lastUsed asc) and proposes removals, recommending the
// safe low/optional-priority ones whose size covers at least 10% of the
// deficit, stopping once cumulative freed space reaches 150% of the deficit.
func PlanRemovals(installed []InstalledComponent, deficit int64) RemovalPlan {
	sorted := append([]InstalledComponent(nil), installed...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priorityRank[sorted[i].Priority], priorityRank[sorted[j].Priority]
		if pi != pj {
			return pi > pj
		}
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].LastUsed < sorted[j].LastUsed
	})

	var plan RemovalPlan
	var cumulativeFreed int64
	threshold := int64(float64(deficit) * 0.1)
	cap150 := int64(float64(deficit) * 1.5)

	for _, c := range sorted {
		impact := removalImpact(c.Priority)
		safety := removalSafety(c.Priority)
		suggestion := RemovalSuggestion{
			Name:        c.Name,
			Freed:       c.Size,
			Impact:      impact,
			Safety:      safety,
			Description: removalDescription(c, impact, safety),
		}
		plan.Candidates = append(plan.Candidates, suggestion)

		if cumulativeFreed >= cap150 {
			continue
		}
		isLowPriority := c.Priority == PriorityLow || c.Priority == PriorityOptional
		if safety == SafetySafe && isLowPriority && c.Size >= threshold {
			plan.RecommendedRemovals = append(plan.RecommendedRemovals, c.Name)
			cumulativeFreed += c.Size
		}
	}

	return plan
}

func removalImpact(p Priority) Impact {
	switch p {
	case PriorityCritical, PriorityHigh:
		return ImpactHigh
	case PriorityMedium:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func removalSafety(p Priority) Safety {
	switch p {
	case PriorityCritical:
		return SafetyRisky
	case PriorityHigh, PriorityMedium:
		return SafetyCaution
	default:
		return SafetySafe
	}
}

func removalDescription(c InstalledComponent, impact Impact, safety Safety) string {
	switch safety {
	case SafetySafe:
		return "safe to remove, " + string(impact) + " impact"
	case SafetyCaution:
		return "removing may affect dependents, " + string(impact) + " impact"
	default:
		return "critical component, removal not recommended"
	}
}
