// # cmd/gqlshift/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gqlshift/internal/config"
	"gqlshift/internal/rollout"
	"gqlshift/internal/shared/observability"
)

var (
	configPath   = flag.String("config", "./gqlshift.toml", "Path to config file")
	preview      = flag.Bool("preview", false, "Compute rewrites without writing files")
	backup       = flag.Bool("backup", false, "Write .bak copies before rewriting files")
	skipInvalid  = flag.Bool("skip-invalid", false, "Exit zero even when some operations failed validation or application")
	strategy     = flag.String("strategy", "", "Override extraction strategy (pattern, structural, hybrid)")
	rollbackOp   = flag.String("rollback", "", "Roll back one operation ID (with the rollback command)")
	gradual      = flag.Bool("gradual", false, "Use the gradual rollback strategy when starting a rollout")
	otlpEndpoint = flag.String("otlp", "", "OTLP gRPC endpoint for traces")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: gqlshift [flags] <command>

Commands:
  extract    scan sources and list operations, fragments and variants
  transform  compute rewrites and print proposed changes
  validate   run external validation over transformed operations
  apply      rewrite source files (honors -preview, -backup and -skip-invalid)
  rollout    manage progressive rollout: rollout status | start <op> | rollback
  watch      re-run analysis on source changes

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("gqlshift v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./gqlshift.toml" {
			cfg, err = config.Load("./gqlshift.example.toml")
		}
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *strategy != "" {
		cfg.Extraction.Strategy = *strategy
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracing(ctx, *otlpEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	if *backup {
		app.orch.SetBackup(true)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "apply"
	}

	switch command {
	case "extract":
		err = app.Extract(ctx)
	case "transform":
		err = app.Transform(ctx)
	case "validate":
		err = app.Validate(ctx)
	case "apply":
		err = app.Apply(ctx, *preview, *skipInvalid)
	case "rollout":
		err = runRollout(app)
	case "watch":
		err = app.Watch(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func runRollout(app *App) error {
	switch flag.Arg(1) {
	case "", "status":
		app.RolloutStatus()
		return nil
	case "start":
		id := flag.Arg(2)
		if id == "" {
			return fmt.Errorf("rollout start requires an operation ID")
		}
		strategy := rollout.StrategyImmediate
		if *gradual {
			strategy = rollout.StrategyGradual
		}
		return app.StartRollout(id, strategy)
	case "rollback":
		return app.Rollback(*rollbackOp)
	default:
		return fmt.Errorf("unknown rollout subcommand %q (want status, start or rollback)", flag.Arg(1))
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
