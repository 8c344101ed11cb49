package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"enroute/internal/birch"
	"enroute/internal/board"
	"enroute/internal/config"
	"enroute/internal/db"
	"enroute/internal/enunciator"
	"enroute/internal/geo"
	"enroute/internal/logging"
	"enroute/internal/metrics"
	"enroute/internal/publisher"
	"enroute/internal/settings"
	"enroute/internal/ui"
)

const usageText = `usage:
  enroute [-headless] [-log-stderr] nearby|grid|station|trip [key=value ...]
  enroute set <key> <value>
  enroute unset <key>
  enroute get [key]
  enroute layout [-station] show|reset|grid ROWS COLS|pane ID key=value ...|import FILE
`

func main() {
	headless := flag.Bool("headless", false, "run without the terminal UI")
	logStderr := flag.Bool("log-stderr", false, "log to stderr instead of the log file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{board.ViewNearby}
	}

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		fatal("config error: %v", err)
	}

	if *logStderr {
		logging.InitWriter(os.Stderr, cfg.LogLevel)
	} else if err := logging.Init(cfg.LogFile, cfg.LogLevel); err != nil {
		fatal("log init error: %v", err)
	}
	defer logging.Close()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := db.Open(ctx, cfg.StoreDSN)
	if err != nil {
		fatal("store open error: %v", err)
	}
	defer kv.Close()

	switch args[0] {
	case "set", "unset", "get":
		err = runSettings(ctx, kv, args, os.Stdout)
	case "layout":
		err = runLayout(ctx, kv, args[1:], os.Stdout)
	case board.ViewNearby, board.ViewGrid, board.ViewStation, board.ViewTrip:
		err = runBoard(ctx, cfg, kv, args[0], args[1:], *headless)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Error("command failed", "command", args[0], "error", err)
		logging.Close()
		kv.Close()
		fatal("%s: %v", args[0], err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "enroute: "+format+"\n", args...)
	os.Exit(1)
}

// runBoard wires one board session to its sinks and blocks until the UI
// quits or ctx is done.
func runBoard(ctx context.Context, cfg *config.Config, kv *db.KV, view string, args []string, headless bool) error {
	query, err := settings.ParseQuery(args)
	if err != nil {
		return err
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.APIRate, cfg.HTTPTimeout)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := birch.NewClient(birch.Options{
		BaseURL:     cfg.APIBase,
		StopBaseURL: cfg.StopAPIBase,
		Timeout:     cfg.HTTPTimeout,
		RPS:         cfg.APIRate,
		Metrics:     upstreamMetrics(mcol),
	})

	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
	}

	player, err := newPlayer(cfg, pub)
	if err != nil {
		return err
	}
	builder := enunciator.NewBuilder(enunciator.NewHTTPSchemes(cfg.AssetsBase, client))

	var sinks board.MultiSink
	var program *tea.Program
	if !headless {
		program = tea.NewProgram(ui.NewApp(cfg.Location), tea.WithAltScreen(), tea.WithContext(ctx))
		sinks = append(sinks, ui.ProgramSink{Program: program})
	}
	if pub != nil {
		sinks = append(sinks, board.NewPublisherSink(pub))
	}
	if headless && pub == nil {
		sinks = append(sinks, board.LogSink{})
	}

	deps := board.Deps{
		API:      client,
		Locator:  geo.NewLocator(cfg.IPGeoURL),
		Settings: settings.Resolver{Query: query, Store: kv},
		Layouts:  kv,
		Sink:     sinks,
		Metrics:  boardMetrics(mcol),
		Location: cfg.Location,
	}
	deps.NewAnnouncer = func(caption func(string)) board.Announcer {
		return enunciator.NewSequencer(builder, player, caption, enunciator.DefaultTimings(), announceMetrics(mcol))
	}
	session, err := board.NewSession(ctx, view, deps)
	if err != nil {
		return err
	}

	mgr := board.NewManager(boardMetrics(mcol))
	defer mgr.StopAll()
	mgr.Start(ctx, session)
	logging.Info("board started", "view", view, "session", session.ID(), "headless", headless)

	if program == nil {
		// Block until context cancelled
		<-ctx.Done()
		return nil
	}
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

func newPlayer(cfg *config.Config, pub *publisher.NATSPublisher) (enunciator.Player, error) {
	switch cfg.Audio {
	case config.AudioExec:
		return enunciator.NewExecPlayer(cfg.ClipCmd, cfg.TTSCmd, cfg.ClipRoot()), nil
	case config.AudioNATS:
		if pub == nil {
			return nil, errors.New("nats audio requires a NATS connection")
		}
		return pub.AudioPlayer(), nil
	}
	return enunciator.NopPlayer{}, nil
}
