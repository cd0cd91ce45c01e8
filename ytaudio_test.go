package ytaudio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ytaudio/config"
	"ytaudio/download"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DownloadMaxRetries = 5
	cfg.DownloadInitialBackoff = 3 * time.Second
	cfg.DownloadDirectory = "/tmp/dl"
	cfg.PermanentErrorPhrases = []string{"geo restricted"}

	got := EngineConfig(cfg)
	if got.MaxRetries != 5 || got.InitialBackoff != 3*time.Second || got.OutputDir != "/tmp/dl" {
		t.Errorf("EngineConfig() = %+v", got)
	}
	if len(got.PermanentPhrases) != 1 || got.PermanentPhrases[0] != "geo restricted" {
		t.Errorf("PermanentPhrases = %v, want [geo restricted]", got.PermanentPhrases)
	}
	if got.SponsorBlock != nil {
		t.Errorf("SponsorBlock = %+v, want nil when disabled", got.SponsorBlock)
	}

	cfg.SponsorBlock.Enabled = true
	cfg.SponsorBlock.Action = "mark"
	got = EngineConfig(cfg)
	if got.SponsorBlock == nil {
		t.Fatal("SponsorBlock = nil, want set when enabled")
	}
	if got.SponsorBlock.Action != download.ActionMark || len(got.SponsorBlock.Categories) != 4 {
		t.Errorf("SponsorBlock = %+v, want mark with 4 categories", got.SponsorBlock)
	}
}

func TestRunSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ChannelIDs = []string{"UCa", "UCb"}
	cfg.TargetDirectory = "/music"
	cfg.DryRun = true

	got := RunSettings(cfg)
	if len(got.ChannelIDs) != 2 || got.TargetDirectory != "/music" || !got.DryRun {
		t.Errorf("RunSettings() = %+v", got)
	}
	if got.LookbackDays != 7 || got.HistoryMaxAgeDays != 90 {
		t.Errorf("LookbackDays/HistoryMaxAgeDays = %d/%d, want 7/90", got.LookbackDays, got.HistoryMaxAgeDays)
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"api without key", func(c *config.Config) {}, ErrAPIKeyRequired},
		{"api with key", func(c *config.Config) { c.APIKey = "test-key" }, nil},
		{"dry run", func(c *config.Config) { c.DryRun = true }, nil},
		{"feed without key", func(c *config.Config) { c.SourceMode = config.SourceFeed }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			_, err := NewSource(context.Background(), cfg, discardLogger())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSource() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRunner_DryRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DryRun = true
	cfg.MockVideoCount = 2
	cfg.ChannelIDs = []string{"UCchannel"}
	cfg.HistoryFile = dir + "/history.json"
	cfg.DownloadDirectory = dir
	cfg.TargetDirectory = dir

	reg := prometheus.NewRegistry()
	r, err := NewRunner(context.Background(), cfg, discardLogger(), reg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	s := r.Run(context.Background())
	if s.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", s.ExitCode())
	}
	if s.Discovered != 2 || s.New != 2 {
		t.Errorf("Discovered/New = %d/%d, want 2/2", s.Discovered, s.New)
	}
	if s.Downloads.Total() != 0 {
		t.Errorf("downloads = %d, want 0 in dry run", s.Downloads.Total())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("no metrics registered")
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent("ERROR: [youtube] abc: Private video") {
		t.Error("IsPermanent(private video) = false, want true")
	}
	if IsPermanent("HTTP Error 503") {
		t.Error("IsPermanent(503) = true, want false")
	}
}
