// Command provision is the CLI/config surface from spec.md §6: list
// components, install one or more components, verify the environment,
// clean up stale state, and export operation history. Grounded on the
// teacher's cmd/depot/main.go kong wiring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/a-h/provision/compress"
	"github.com/a-h/provision/download"
	"github.com/a-h/provision/ledger"
	"github.com/a-h/provision/metrics"
	"github.com/a-h/provision/pkgmanager"
	"github.com/a-h/provision/provision"
	"github.com/a-h/provision/storage"
	"github.com/alecthomas/kong"
)

// Globals carries flags shared by every subcommand, inlined here rather
// than in a separate subpackage since this module only has the one binary.
type Globals struct {
	Verbose bool `help:"Enable debug logging" env:"PROVISION_VERBOSE"`
}

type CLI struct {
	Globals

	DatabaseType      string `help:"Ledger store type (sqlite, rqlite or postgres)" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"PROVISION_DATABASE_TYPE"`
	DatabaseURL       string `help:"Ledger store connection URL" default:"" env:"PROVISION_DATABASE_URL"`
	StorePath         string `help:"Path to local artifact staging directory" default:"" env:"PROVISION_STORE_PATH"`
	MetricsListenAddr string `help:"Address to serve Prometheus metrics on; empty disables the scrape endpoint" default:"" env:"PROVISION_METRICS_LISTEN_ADDR"`

	List     ListCmd     `cmd:"" help:"List components known to the configured package manager"`
	Install  InstallCmd  `cmd:"" help:"Resolve, download and install one or more components"`
	Verify   VerifyCmd   `cmd:"" help:"Verify previously installed components are intact"`
	Cleanup  CleanupCmd  `cmd:"" help:"Remove stale temp files and prune old ledger records"`
	Compress CompressCmd `cmd:"" help:"Compress cold, compressible files under a directory"`
	History  HistoryCmd  `cmd:"" help:"Export operation history"`
}

var Version = "dev"

// exit codes per spec.md §6.
const (
	exitSuccess          = 0
	exitGeneralFailure   = 1
	exitBadInput         = 2
	exitRetriesExhausted = 3
)

func (g *Globals) logger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	if g.Verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func (c *CLI) openStore(ctx context.Context) (*ledger.Ledger, func() error, error) {
	dsn := c.DatabaseURL
	if dsn == "" {
		dir := c.StorePath
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("resolving home directory: %w", err)
			}
			dir = home + "/.provision"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s/provision.db?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate", dir)
	}
	kvStore, closer, err := ledger.NewStore(ctx, c.DatabaseType, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger store: %w", err)
	}
	led, err := ledger.New(ctx, c.logger(), kvStore)
	if err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("opening ledger: %w", err)
	}
	return led, closer, nil
}

type ListCmd struct {
	Ecosystem string `help:"Package ecosystem to query (npm or pip)" default:"npm" enum:"npm,pip" env:"PROVISION_ECOSYSTEM"`
	Component string `arg:"" help:"Component name to look up"`
}

func (cmd *ListCmd) Run(g *Globals) error {
	log := g.logger()
	pm := pkgManagerFor(cmd.Ecosystem, log)

	ctx := context.Background()
	info, ok := pm.GetPackageInfo(ctx, cmd.Component)
	if !ok {
		fmt.Fprintf(os.Stderr, "component %q not found\n", cmd.Component)
		os.Exit(exitBadInput)
	}
	fmt.Printf("%s: latest %s, %d known versions, %d declared dependencies\n",
		info.Name, info.Latest.String(), len(info.Versions), len(info.Dependencies))
	return nil
}

type InstallCmd struct {
	Components   []string `arg:"" help:"Component names to provision"`
	Ecosystem    string   `help:"Package ecosystem to resolve against" default:"npm" enum:"npm,pip" env:"PROVISION_ECOSYSTEM"`
	Concurrency  int      `help:"Maximum concurrent downloads" default:"4" env:"PROVISION_CONCURRENCY"`
	RetryLimit   int      `help:"Maximum retries per download" default:"3" env:"PROVISION_RETRY_LIMIT"`
	Mirrors      []string `help:"Fallback mirror base URLs" env:"PROVISION_MIRRORS"`
	OutputFormat string   `help:"Result summary format (text or json)" default:"text" enum:"text,json" env:"PROVISION_OUTPUT_FORMAT"`
}

func (cmd *InstallCmd) Run(g *Globals, cli *CLI) error {
	log := g.logger()
	ctx := context.Background()

	led, closer, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}

	if cli.MetricsListenAddr != "" {
		go func() {
			if err := metrics.ListenAndServe(cli.MetricsListenAddr); err != nil {
				log.Error("metrics server exited", slog.String("addr", cli.MetricsListenAddr), slog.String("error", err.Error()))
			}
		}()
	}

	pm := pkgManagerFor(cmd.Ecosystem, log)
	engine := download.New(log, download.WithMaxRetries(cmd.RetryLimit))

	storePath := cli.StorePath
	if storePath == "" {
		storePath = "./provision-store"
	}
	artStore := storage.NewFileSystem(storePath)

	orch := provision.NewPackageManagerOrchestrator(log, pm, noopArtifactResolver{}, engine, artStore, noopExecutor{}, led, nil).WithMetrics(m)

	result, err := orch.Process(ctx, provision.Request{Components: cmd.Components, MaxConcurrent: cmd.Concurrency})
	if err != nil {
		fmt.Fprintf(os.Stderr, "provisioning failed: %v\n", err)
		os.Exit(exitGeneralFailure)
	}

	if len(result.Failed) > 0 && len(result.Installed) == 0 {
		fmt.Fprintf(os.Stderr, "all components failed: %v\n", result.Failed)
		os.Exit(exitRetriesExhausted)
	}

	if cmd.OutputFormat == "json" {
		fmt.Printf(`{"installed":%q,"failed":%q}`+"\n", result.Installed, result.Failed)
	} else {
		fmt.Printf("installed: %v\nfailed: %v\n", result.Installed, result.Failed)
	}
	return nil
}

type VerifyCmd struct {
	Component string `arg:"" help:"Component to verify"`
}

func (cmd *VerifyCmd) Run(g *Globals, cli *CLI) error {
	ctx := context.Background()
	led, closer, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	records := led.SearchOperations(ctx, cmd.Component)
	if len(records) == 0 {
		fmt.Printf("no operation history found for %q\n", cmd.Component)
		os.Exit(exitBadInput)
	}
	latest := records[0]
	fmt.Printf("%s: last status %s at %s\n", cmd.Component, latest.Status, latest.EndTime.Format(time.RFC3339))
	if latest.Status != ledger.StatusCompleted {
		os.Exit(exitGeneralFailure)
	}
	return nil
}

type CleanupCmd struct {
	TempDirs      []string `help:"Directories to sweep for stale .tmp files"`
	RetentionDays int      `help:"Ledger records older than this many days are removed" default:"90" env:"PROVISION_RETENTION_DAYS"`
}

func (cmd *CleanupCmd) Run(g *Globals, cli *CLI) error {
	ctx := context.Background()
	led, closer, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	removedFiles, err := download.CleanupTempFiles(cmd.TempDirs, time.Now())
	if err != nil {
		return fmt.Errorf("cleaning temp files: %w", err)
	}
	removedRecords, err := led.CleanupOldRecords(ctx, cmd.RetentionDays)
	if err != nil {
		return fmt.Errorf("cleaning old ledger records: %w", err)
	}
	fmt.Printf("removed %d temp files, %d ledger records\n", len(removedFiles), removedRecords)
	return nil
}

type CompressCmd struct {
	Root         string `arg:"" help:"Directory to scan for compression candidates"`
	MinSizeBytes int64  `help:"Minimum file size to consider" default:"1048576"`
	MinAgeDays   int    `help:"Minimum days since last access" default:"30"`
}

func (cmd *CompressCmd) Run(g *Globals, cli *CLI) error {
	log := g.logger()
	ctx := context.Background()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}

	if cli.MetricsListenAddr != "" {
		go func() {
			if err := metrics.ListenAndServe(cli.MetricsListenAddr); err != nil {
				log.Error("metrics server exited", slog.String("addr", cli.MetricsListenAddr), slog.String("error", err.Error()))
			}
		}()
	}

	var files []compress.FileStat
	err = filepath.Walk(cmd.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		files = append(files, compress.FileStat{Path: path, Size: info.Size(), LastAccessed: info.ModTime()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", cmd.Root, err)
	}

	engine := compress.New(log, compress.WithMetrics(m))
	result := engine.Run(ctx, files, compress.CandidacyOptions{
		MinSizeBytes: cmd.MinSizeBytes,
		MinAge:       time.Duration(cmd.MinAgeDays) * 24 * time.Hour,
	})

	removedTemp, cleanupErrs := compress.CleanupTempFiles([]string{cmd.Root}, time.Now())
	if len(cleanupErrs) > 0 {
		return fmt.Errorf("cleaning compression temp files: %v", cleanupErrs)
	}

	fmt.Printf("compressed %d file(s), saved %d bytes (ratio %.2f), removed %d stale temp file(s)\n",
		len(result.CompressedFiles), result.SpaceSaved, result.CompressionRatio, len(removedTemp))
	if !result.Success {
		os.Exit(exitGeneralFailure)
	}
	return nil
}

type HistoryCmd struct {
	Format string `help:"Export format" default:"json" enum:"json,csv,html,xml,zip" env:"PROVISION_OUTPUT_FORMAT"`
	Path   string `help:"Destination file path (defaults to reports/operation_history_<time>.<ext>)"`
	Status string `help:"Filter by status"`
}

func (cmd *HistoryCmd) Run(g *Globals, cli *CLI) error {
	ctx := context.Background()
	led, closer, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	filters := ledger.Filters{Status: ledger.Status(cmd.Status)}
	path, err := led.Export(ctx, ledger.Format(cmd.Format), filters, cmd.Path)
	if err != nil {
		return fmt.Errorf("exporting history: %w", err)
	}
	fmt.Printf("exported history to %s\n", path)
	return nil
}

func pkgManagerFor(ecosystem string, log *slog.Logger) pkgmanager.PackageManager {
	if ecosystem == "pip" {
		return pkgmanager.NewPip(log)
	}
	return pkgmanager.NewNPM(log)
}

// noopArtifactResolver is the placeholder ArtifactResolver wired by the CLI
// until a concrete registry-to-artifact translation is configured; it
// reports every component as unresolvable, which fails the install fast
// rather than fetching nothing silently.
type noopArtifactResolver struct{}

func (noopArtifactResolver) Artifact(ctx context.Context, name, version string) (download.Request, storage.ComponentRequest, error) {
	return download.Request{}, storage.ComponentRequest{}, fmt.Errorf("no artifact source configured for %s@%s", name, version)
}

// noopExecutor is the placeholder InstallActionExecutor; real install
// actions (archive extraction, package-manager invocation) are supplied by
// embedders of this module, per spec.md §1's "ports consumed, not owned"
// boundary.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, componentName, artifactPath string) error {
	return nil
}

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("provision"),
		kong.Description("Resolve, download and install development environment components"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(&cli.Globals, &cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGeneralFailure)
	}
}
