// Package metrics records per-run Prometheus metrics and writes them to a
// node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage labels for the video funnel gauge.
const (
	StageDiscovered = "discovered"
	StageQualified  = "qualified"
	StageNew        = "new"
)

// RunRecorder is the metrics interface used by the run orchestrator.
type RunRecorder interface {
	RecordVideos(stage string, count int)
	RecordDownloadSuccess(retries int)
	RecordDownloadFailure(retries int)
	RecordMoves(successful, failed int)
	RecordQuotaUnits(units int64)
	RecordRunFinished(duration time.Duration, success bool)
}

// Collector is the Prometheus implementation of RunRecorder.
type Collector struct {
	videos           *prometheus.GaugeVec
	downloads        *prometheus.CounterVec
	retries          prometheus.Counter
	moves            *prometheus.CounterVec
	quotaUnits       prometheus.Gauge
	runDuration      prometheus.Gauge
	lastRun          prometheus.Gauge
	lastSuccess      prometheus.Gauge
	lastRunSucceeded prometheus.Gauge

	now func() time.Time
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		videos: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ytaudio_videos",
			Help: "Videos seen in the last run, by stage.",
		}, []string{"stage"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytaudio_downloads_total",
			Help: "Download outcomes, by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytaudio_download_retries_total",
			Help: "Download retries spent.",
		}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytaudio_file_moves_total",
			Help: "Files moved to the target directory, by result.",
		}, []string{"result"}),
		quotaUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytaudio_youtube_quota_units",
			Help: "YouTube Data API quota units used by the last run.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytaudio_run_duration_seconds",
			Help: "Duration of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytaudio_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytaudio_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished.",
		}),
		lastRunSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytaudio_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise.",
		}),
		now: time.Now,
	}

	reg.MustRegister(
		c.videos,
		c.downloads,
		c.retries,
		c.moves,
		c.quotaUnits,
		c.runDuration,
		c.lastRun,
		c.lastSuccess,
		c.lastRunSucceeded,
	)

	return c
}

// RecordVideos sets the number of videos at a funnel stage.
func (c *Collector) RecordVideos(stage string, count int) {
	c.videos.WithLabelValues(stage).Set(float64(count))
}

// RecordDownloadSuccess records a successful download.
func (c *Collector) RecordDownloadSuccess(retries int) {
	c.downloads.WithLabelValues("success").Inc()
	c.retries.Add(float64(retries))
}

// RecordDownloadFailure records a failed download.
func (c *Collector) RecordDownloadFailure(retries int) {
	c.downloads.WithLabelValues("failure").Inc()
	c.retries.Add(float64(retries))
}

// RecordMoves records the result of the move phase.
func (c *Collector) RecordMoves(successful, failed int) {
	c.moves.WithLabelValues("success").Add(float64(successful))
	c.moves.WithLabelValues("failure").Add(float64(failed))
}

// RecordQuotaUnits sets the API quota spent.
func (c *Collector) RecordQuotaUnits(units int64) {
	c.quotaUnits.Set(float64(units))
}

// RecordRunFinished records the run's duration and result.
func (c *Collector) RecordRunFinished(duration time.Duration, success bool) {
	now := float64(c.now().Unix())
	c.runDuration.Set(duration.Seconds())
	c.lastRun.Set(now)
	if success {
		c.lastRunSucceeded.Set(1)
		c.lastSuccess.Set(now)
	} else {
		c.lastRunSucceeded.Set(0)
	}
}
