// Package metrics exposes prometheus instrumentation for the filter pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playlistChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "m3ufilter_playlist_channels",
		Help: "Playlist channels by stage (last run)",
	}, []string{"stage"}) // stage=input|filtered

	epgChannelsWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "m3ufilter_epg_channels_written",
		Help: "Number of channels written to the reduced EPG in last run",
	})

	epgProgrammesWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "m3ufilter_epg_programmes_written",
		Help: "Number of programmes written to the reduced EPG in last run",
	})

	epgFallbackEngaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "m3ufilter_epg_fallback_engaged_total",
		Help: "Times the time-heuristic channel fallback tier was engaged",
	})

	epgTimestampAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "m3ufilter_epg_timestamp_anomalies_total",
		Help: "Programmes kept despite unparsable start/stop timestamps",
	})

	fetchBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3ufilter_fetch_bytes_total",
		Help: "Bytes downloaded by payload kind",
	}, []string{"kind"}) // kind=playlist|epg

	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3ufilter_fetch_failures_total",
		Help: "Download failures by payload kind",
	}, []string{"kind"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3ufilter_uploads_total",
		Help: "Object storage uploads by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	refreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "m3ufilter_refresh_failures_total",
		Help: "Refresh failures by stage",
	}, []string{"stage"}) // stage=config|fetch|filter|reduce|write|upload
)

func SetPlaylistChannels(stage string, n int) {
	playlistChannels.WithLabelValues(stage).Set(float64(n))
}

func SetEPGWritten(channels, programmes int) {
	epgChannelsWritten.Set(float64(channels))
	epgProgrammesWritten.Set(float64(programmes))
}

func RecordEPGFallback() {
	epgFallbackEngaged.Inc()
}

func RecordTimestampAnomaly() {
	epgTimestampAnomalies.Inc()
}

func AddFetchBytes(kind string, n int) {
	fetchBytes.WithLabelValues(kind).Add(float64(n))
}

func RecordFetchFailure(kind string) {
	fetchFailures.WithLabelValues(kind).Inc()
}

func RecordUpload(outcome string) {
	uploadsTotal.WithLabelValues(outcome).Inc()
}

func RecordRefreshFailure(stage string) {
	refreshFailures.WithLabelValues(stage).Inc()
}
