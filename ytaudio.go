package ytaudio

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"ytaudio/config"
	"ytaudio/download"
	"ytaudio/enrich"
	ythttp "ytaudio/http"
	"ytaudio/metrics"
	"ytaudio/runner"
	"ytaudio/youtube"
)

// NewSource creates the YouTube client for cfg. In feed mode uploads are
// listed from channel feeds and the API key, if any, is only used for
// qualification details.
func NewSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*youtube.Client, error) {
	opts := youtube.Options{
		APIKey:       cfg.APIKey,
		MaxResults:   cfg.APIMaxResults,
		ChannelDelay: cfg.APIRateLimitDelay,
		Timeout:      cfg.APITimeout,
		DryRun:       cfg.DryRun,
		MockCount:    cfg.MockVideoCount,
		Logger:       logger,
	}
	if cfg.SourceMode == config.SourceFeed {
		httpCfg := ythttp.DefaultConfig()
		httpCfg.Timeout = cfg.APITimeout
		opts.Source = youtube.NewFeedLister(ythttp.New(httpCfg), logger)
	}
	return youtube.NewClient(ctx, opts)
}

// NewEngine creates the download engine for cfg, with cover art and
// chapter embedding attached.
func NewEngine(cfg *config.Config, logger *slog.Logger) *download.Engine {
	extractor := download.NewYtdlpExtractor(cfg.YtdlpPath)
	extractor.FFmpegPath = cfg.FFmpegPath
	if cfg.YtdlpTimeout > 0 {
		extractor.Timeout = cfg.YtdlpTimeout
	}

	engine := download.NewEngine(extractor, EngineConfig(cfg), logger)
	ffmpeg := enrich.NewFFmpeg(cfg.FFmpegPath)
	engine.Thumbnails = enrich.NewThumbnailer(ythttp.New(nil), ffmpeg, logger)
	engine.Chapters = enrich.NewChapterer(ffmpeg, logger)
	return engine
}

// EngineConfig maps the download settings of cfg.
func EngineConfig(cfg *config.Config) download.Config {
	dl := download.DefaultConfig()
	dl.MaxRetries = cfg.DownloadMaxRetries
	dl.InitialBackoff = cfg.DownloadInitialBackoff
	dl.OutputDir = cfg.DownloadDirectory
	dl.PermanentPhrases = cfg.PermanentErrorPhrases
	if cfg.SponsorBlock.Enabled && len(cfg.SponsorBlock.Categories) > 0 {
		dl.SponsorBlock = &download.SponsorBlock{
			Categories: cfg.SponsorBlock.Categories,
			Action:     download.Action(cfg.SponsorBlock.Action),
		}
	}
	return dl
}

// RunSettings maps the run settings of cfg.
func RunSettings(cfg *config.Config) runner.Settings {
	return runner.Settings{
		ChannelIDs:        cfg.ChannelIDs,
		LookbackDays:      cfg.LookbackDays,
		HistoryFile:       cfg.HistoryFile,
		HistoryMaxAgeDays: cfg.HistoryMaxAgeDays,
		DownloadDirectory: cfg.DownloadDirectory,
		TargetDirectory:   cfg.TargetDirectory,
		AudioExtensions:   cfg.AudioExtensions,
		DryRun:            cfg.DryRun,
	}
}

// NewRunner wires a Runner for cfg. Run metrics are registered with reg
// when it is non-nil.
func NewRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*runner.Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source, err := NewSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r := runner.New(RunSettings(cfg), source, NewEngine(cfg, logger), logger)
	if reg != nil {
		r.Metrics = metrics.NewCollector(reg)
	}
	return r, nil
}
