// Package provision wires the four engines (resolve, storage, download,
// ledger) into the top-level Request(components) flow described in spec.md
// §2: resolve a plan, confirm storage feasibility and per-component drive
// assignment, fetch verified artifacts in parallel, then hand off to the
// external InstallActionExecutor port. Every state transition is tracked in
// the Operation Ledger. Grounded on the teacher's cmd/depot/main.go
// construction/wiring style, generalised from an HTTP server's handler
// wiring to a single synchronous orchestration call.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/a-h/provision/download"
	"github.com/a-h/provision/ledger"
	"github.com/a-h/provision/metrics"
	"github.com/a-h/provision/pkgmanager"
	"github.com/a-h/provision/resolve"
	"github.com/a-h/provision/storage"
	"github.com/google/uuid"
)

// InstallActionExecutor is the port consumed by the core once a component's
// artifact has been fetched and verified: it performs the component-type-
// specific install action (archive extraction, package-manager invocation,
// etc). Concrete implementations live outside this module per spec.md §1.
type InstallActionExecutor interface {
	Execute(ctx context.Context, componentName string, artifactPath string) error
}

// ArtifactResolver supplies the download URL, expected hash and mirrors for
// a named component once the resolver has pinned its version. Concrete
// implementations translate a resolve.Graph node into fetchable locations;
// this module has no opinion on how that translation happens.
type ArtifactResolver interface {
	Artifact(ctx context.Context, componentName, version string) (download.Request, storage.ComponentRequest, error)
}

// Request is the caller-facing Request(components) from spec.md §2.
type Request struct {
	Components    []string
	UserID        string
	SessionID     string
	MaxConcurrent int
}

// Result is the outcome of processing one Request end to end.
type Result struct {
	Analysis     resolve.DependencyAnalysisResult
	Selective    storage.SelectiveInstallPlan
	Distribution storage.DistributionPlan
	Downloads    download.ParallelDownloadResult
	Installed    []string
	Failed       []string
}

// Orchestrator wires the engines together per the §2 data-flow diagram.
type Orchestrator struct {
	log       *slog.Logger
	source    resolve.ComponentSource
	artifacts ArtifactResolver
	downloads *download.Engine
	artStore  storage.ArtifactStore
	executor  InstallActionExecutor
	ledger    *ledger.Ledger
	drives    storage.DriveEnumerator
	metrics   metrics.Metrics
	now       func() time.Time
	newID     func() string
}

// WithMetrics attaches an operational metrics sink; every counter call is a
// no-op on the zero-value metrics.Metrics{}, so this is optional.
func (o *Orchestrator) WithMetrics(m metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// New constructs an Orchestrator from its collaborators. Every dependency is
// injected, matching spec.md §9's "global mutable state" note: no package
// keeps a process-wide singleton of its own.
func New(
	log *slog.Logger,
	source resolve.ComponentSource,
	artifacts ArtifactResolver,
	downloads *download.Engine,
	artStore storage.ArtifactStore,
	executor InstallActionExecutor,
	led *ledger.Ledger,
	drives storage.DriveEnumerator,
) *Orchestrator {
	return &Orchestrator{
		log:       log,
		source:    source,
		artifacts: artifacts,
		downloads: downloads,
		artStore:  artStore,
		executor:  executor,
		ledger:    led,
		drives:    drives,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Process runs the full data flow for one Request: resolve, confirm
// storage feasibility, fetch, install, recording every transition to the
// ledger.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	opID := o.newID()
	var res Result

	o.track(ctx, opID, ledger.KindResolve, req, 0, "resolving dependency graph", nil)

	graph := resolve.Build(ctx, o.source, req.Components)
	res.Analysis = resolve.Analyse(graph, o.now)
	o.metrics.IncrementResolution(ctx, res.Analysis.ConflictCount, res.Analysis.CycleCount)

	if res.Analysis.ConflictCount > 0 || res.Analysis.CycleCount > 0 {
		var warnings []string
		for _, step := range res.Analysis.Plan {
			warnings = append(warnings, step.Description)
		}
		o.track(ctx, opID, ledger.KindResolve, req, 20, "resolved with unresolved conflicts or cycles", warnings)
	} else {
		o.track(ctx, opID, ledger.KindResolve, req, 20, "dependency graph resolved cleanly", nil)
	}

	drives, err := o.enumerateDrives()
	if err != nil {
		o.track(ctx, opID, ledger.KindResolve, req, 20, "drive enumeration failed", []string{err.Error()})
		return res, fmt.Errorf("provision: enumerating drives: %w", err)
	}

	componentRequests, downloadRequests, err := o.resolveArtifacts(ctx, graph, req.Components)
	if err != nil {
		o.track(ctx, opID, ledger.KindResolve, req, 20, "artifact resolution failed", []string{err.Error()})
		return res, fmt.Errorf("provision: resolving artifacts: %w", err)
	}

	res.Distribution = storage.PlanDistribution(componentRequests, drives)
	if !res.Distribution.DistributionFeasible {
		o.track(ctx, opID, ledger.KindInstall, req, 30, "distribution plan could not place every component", res.Distribution.Warnings)
	}

	o.track(ctx, opID, ledger.KindDownload, req, 40, "fetching artifacts", nil)
	res.Downloads = o.downloads.EnableParallelDownloads(ctx, downloadRequests, req.MaxConcurrent, func(p download.Progress) {
		o.track(ctx, opID, ledger.KindDownload, req, 40+30*p.Percent/100, fmt.Sprintf("downloading %s", p.URL), nil)
	})

	for _, result := range res.Downloads.Results {
		name := componentNameForURL(componentRequests, downloadRequests, result.URL)
		o.metrics.IncrementDownload(ctx, name, result.FileSize, result.Status != download.StatusCompleted)
		if result.Status == download.StatusHashFailed {
			o.metrics.IncrementHashFailure(ctx, name)
		}
		if result.Status != download.StatusCompleted {
			res.Failed = append(res.Failed, result.URL)
			continue
		}
		if err := o.executor.Execute(ctx, name, result.Path); err != nil {
			res.Failed = append(res.Failed, name)
			o.track(ctx, opID, ledger.KindInstall, req, 90, fmt.Sprintf("install action failed for %s", name), []string{err.Error()})
			continue
		}
		res.Installed = append(res.Installed, name)
	}

	progress := 100.0
	if len(res.Failed) > 0 {
		o.track(ctx, opID, ledger.KindInstall, req, progress, "provisioning completed with failures", res.Failed)
	} else {
		o.track(ctx, opID, ledger.KindInstall, req, progress, "provisioning completed", nil)
	}

	return res, nil
}

func (o *Orchestrator) enumerateDrives() ([]storage.DriveInfo, error) {
	if o.drives == nil {
		return nil, nil
	}
	drives, err := o.drives.List()
	if err != nil {
		return nil, err
	}
	return storage.AnalyseSystemStorage(drives), nil
}

func (o *Orchestrator) resolveArtifacts(ctx context.Context, graph *resolve.Graph, components []string) ([]storage.ComponentRequest, []download.Request, error) {
	var componentRequests []storage.ComponentRequest
	var downloadRequests []download.Request

	for _, name := range components {
		nodeVersion := ""
		if id, ok := graph.NodeByName(name); ok {
			if v := graph.Nodes[id].RequiredVersion; v != nil {
				nodeVersion = v.String()
			}
		}
		downloadReq, componentReq, err := o.artifacts.Artifact(ctx, name, nodeVersion)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving artifact for %s: %w", name, err)
		}
		componentRequests = append(componentRequests, componentReq)
		downloadRequests = append(downloadRequests, downloadReq)
	}
	return componentRequests, downloadRequests, nil
}

func componentNameForURL(components []storage.ComponentRequest, requests []download.Request, url string) string {
	for i, r := range requests {
		if r.URL == url && i < len(components) {
			return components[i].Name
		}
	}
	return url
}

func (o *Orchestrator) track(ctx context.Context, opID string, kind ledger.Kind, req Request, percent float64, step string, warnings []string) {
	if o.ledger == nil {
		return
	}
	if _, err := o.ledger.Track(ctx, ledger.Progress{
		ID:              opID,
		Kind:            kind,
		Title:           fmt.Sprintf("provision %v", req.Components),
		ProgressPercent: percent,
		CurrentStep:     step,
		Warnings:        warnings,
		UserID:          req.UserID,
		SessionID:       req.SessionID,
	}); err != nil {
		o.metrics.IncrementLedgerWrite(ctx, true)
		o.log.Error("provision: ledger track failed", "operation", opID, "error", err)
		return
	}
	o.metrics.IncrementLedgerWrite(ctx, false)
}

// NewPackageManagerOrchestrator constructs an Orchestrator directly over one
// ecosystem backend, exposing pm as a resolve.ComponentSource through
// resolve.NewPackageManagerSource.
func NewPackageManagerOrchestrator(
	log *slog.Logger,
	pm pkgmanager.PackageManager,
	artifacts ArtifactResolver,
	downloads *download.Engine,
	artStore storage.ArtifactStore,
	executor InstallActionExecutor,
	led *ledger.Ledger,
	drives storage.DriveEnumerator,
) *Orchestrator {
	return New(log, resolve.NewPackageManagerSource(pm), artifacts, downloads, artStore, executor, led, drives)
}
