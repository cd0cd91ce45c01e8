package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ytaudio"
	"ytaudio/config"
	"ytaudio/internal/lock"
	"ytaudio/internal/logging"
	"ytaudio/metrics"
	"ytaudio/runner"
	"ytaudio/storage"
	"ytaudio/youtube"
)

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		os.Exit(cmdRun(args))
	case "list":
		os.Exit(cmdList(args))
	case "history":
		os.Exit(cmdHistory(args))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytaudio - download new YouTube uploads as audio

Usage:
  ytaudio [run] [flags]      Poll channels and download new uploads (default)
  ytaudio list [flags]       List recent qualifying uploads without downloading
  ytaudio history [flags]    Show the download history
  ytaudio help               Show this help message

Examples:
  ytaudio                                   # Scheduled run
  ytaudio --dry-run --debug                 # Synthesized listing, no downloads
  ytaudio run --config ~/ytaudio.json       # Explicit config file
  ytaudio list                              # What the next run would fetch

For help on a specific command: ytaudio <command> -h
`)
}

// commonFlags are accepted by every command.
type commonFlags struct {
	debug      bool
	dryRun     bool
	configFile string
	envFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&c.debug, "d", false, "Shorthand for --debug")
	fs.BoolVar(&c.dryRun, "dry-run", false, "Use synthesized listings and skip downloads")
	fs.StringVar(&c.configFile, "config", "", "JSON config file (default ytaudio.json if present)")
	fs.StringVar(&c.envFile, "env-file", "", "Environment file (default .env if present)")
}

func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: c.configFile,
		EnvFile:    c.envFile,
		DryRun:     c.dryRun,
	})
	if err != nil {
		return nil, err
	}
	if c.debug {
		cfg.LogLevel = "DEBUG"
	}
	return cfg, nil
}

func newFlagSet(name, usage string, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	common.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func newLogger(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{Level: level, Console: console, File: cfg.LogFile})
}

func cmdRun(args []string) (code int) {
	var common commonFlags
	fs := newFlagSet("run", "ytaudio run [flags]", &common)
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closer, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closer.Close()
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("unexpected error", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			code = 1
		}
	}()

	l := lock.New(cfg.LockPath(), logger)
	if err := l.Acquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			logger.Error("another run is in progress", slog.String("lock", l.Path()))
		} else {
			logger.Error("failed to acquire lock", slog.String("lock", l.Path()), slog.String("error", err.Error()))
		}
		return 1
	}
	defer func() {
		if err := l.Release(); err != nil {
			logger.Warn("failed to release lock", slog.String("lock", l.Path()), slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DryRun {
		logger.Info("dry run: listings are synthesized and nothing is downloaded")
	}
	logger.Info("starting run", slog.Int("channels", len(cfg.ChannelIDs)), slog.String("source", cfg.SourceMode))

	reg := prometheus.NewRegistry()
	r, err := ytaudio.NewRunner(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to create youtube client", slog.String("error", err.Error()))
		return 1
	}

	summary := r.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(reg, cfg.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", cfg.MetricsTextfile), slog.String("error", err.Error()))
		}
	}

	code = summary.ExitCode()
	logger.Info("run finished", slog.Int("exit_code", code))
	return code
}

func cmdList(args []string) int {
	var common commonFlags
	fs := newFlagSet("list", "ytaudio list [flags]", &common)
	all := fs.Bool("all", false, "Include shorts, streams and downloaded uploads")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger, closer, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	source, err := ytaudio.NewSource(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	since := time.Now().AddDate(0, 0, -cfg.LookbackDays)
	videos := source.ListRecentVideosForChannels(ctx, cfg.ChannelIDs, since)
	if len(videos) == 0 {
		fmt.Println("No videos found.")
		return 0
	}

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	details := runner.FetchDetails(ctx, source, ids, logger)
	qualifying := make(map[string]bool)
	for _, v := range youtube.FilterQualifying(videos, details) {
		qualifying[v.ID] = true
	}
	downloaded := storage.Load(cfg.HistoryFile, logger).DownloadedIDs()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tTITLE\tCHANNEL\tPUBLISHED\tDURATION\tSTATUS")
	shown := 0
	for _, v := range videos {
		status := "new"
		if _, ok := downloaded[v.ID]; ok {
			status = "downloaded"
		} else if !qualifying[v.ID] {
			status = "skipped"
		}
		if status != "new" && !*all {
			continue
		}

		duration := ""
		if d, ok := details[v.ID]; ok {
			duration = formatDuration(d.DurationSeconds)
			if d.IsLive {
				duration = "live"
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID,
			truncate(v.Title, 50),
			v.ChannelID,
			v.Published.Local().Format("2006-01-02 15:04"),
			duration,
			status,
		)
		shown++
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d of %d videos, %d quota units\n", shown, len(videos), source.QuotaUsed())
	return 0
}

func cmdHistory(args []string) int {
	var common commonFlags
	fs := newFlagSet("history", "ytaudio history [flags]", &common)
	limit := fs.Int("n", 0, "Show only the n most recent downloads (0 = all)")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	h, err := storage.Read(cfg.HistoryFile)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Println("No downloads recorded.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
		return 1
	}

	type row struct {
		id    string
		entry storage.Entry
		when  time.Time
	}
	rows := make([]row, 0, h.Len())
	for id, e := range h.Videos {
		when, _ := storage.ParseTimestamp(e.DownloadedAt)
		rows = append(rows, row{id: id, entry: e, when: when})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].when.Equal(rows[j].when) {
			return rows[i].when.After(rows[j].when)
		}
		return rows[i].id < rows[j].id
	})
	if *limit > 0 && len(rows) > *limit {
		rows = rows[:*limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tTITLE\tCHANNEL\tDOWNLOADED")
	for _, r := range rows {
		downloaded := r.entry.DownloadedAt
		if !r.when.IsZero() {
			downloaded = r.when.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.id, truncate(r.entry.Title, 50), r.entry.ChannelID, downloaded)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d downloads\n", h.Len())
	return 0
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func formatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
