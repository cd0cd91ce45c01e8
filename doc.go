// Package ytaudio polls YouTube channels for new uploads and keeps an audio
// copy of each one.
//
// Overview
//
// A run lists the recent uploads of every configured channel, drops Shorts
// and live streams, skips what the download history already holds, fetches
// the audio of the rest with yt-dlp and moves the finished files into a
// target directory. It is meant to be started by cron or a systemd timer.
//
// The sub-packages do the work:
//
//   - config: defaults, config file, .env and environment settings
//   - youtube: Data API and Atom feed listing, qualification
//   - download: yt-dlp invocation with retry of transient failures
//   - enrich: cover art and chapter embedding
//   - storage: the JSON download history
//   - fileops: moving finished files
//   - runner: one run from listing to summary
//   - metrics: Prometheus run metrics
//
// This package wires them together from a loaded configuration:
//
//	cfg, err := config.Load(config.LoadOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	r, err := ytaudio.NewRunner(ctx, cfg, slog.Default(), prometheus.NewRegistry())
//	if err != nil {
//		log.Fatal(err)
//	}
//	summary := r.Run(ctx)
//	os.Exit(summary.ExitCode())
package ytaudio
