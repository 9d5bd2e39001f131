// Package telemetry exposes the read-only status surface (spec §5/§6) as
// both an in-process snapshot type and a set of Prometheus collectors: one
// GaugeVec per per-receiver field, labeled by receiver index, and one
// unlabeled Gauge per engine-wide field.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReceiverStatus is a read-only snapshot of one receiver (spec §5).
type ReceiverStatus struct {
	Active                   bool
	Frequency                uint64
	Mode                     string
	SessionID                string
	State                    string
	SamplesReceived          uint64
	CompressedBytesReceived  uint64
	ThroughputKBps           float32
	PeakI                    float32
	PeakQ                    float32
	RingFill                 float32
	RingOverruns             uint32
	RingUnderruns            uint32
	RingCapacity             uint32
}

// Status is the full engine snapshot returned by read_status (spec §5).
type Status struct {
	Receivers     []ReceiverStatus
	TotalCallbacks uint64
	TotalSamples   uint64
	UptimeMs       uint64
	ActiveCount    uint8
	SampleRateHz   uint32
	BlockSize      uint32
}

// Metrics is the Prometheus collector set for one engine instance: one
// GaugeVec per ReceiverStatus field, labeled by receiver index, plus one
// unlabeled Gauge per engine-wide Status field.
type Metrics struct {
	active          *prometheus.GaugeVec
	frequency       *prometheus.GaugeVec
	samplesReceived *prometheus.GaugeVec
	bytesReceived   *prometheus.GaugeVec
	throughputKBps  *prometheus.GaugeVec
	peakI           *prometheus.GaugeVec
	peakQ           *prometheus.GaugeVec
	ringFill        *prometheus.GaugeVec
	ringOverruns    *prometheus.GaugeVec
	ringUnderruns   *prometheus.GaugeVec
	ringCapacity    *prometheus.GaugeVec

	totalCallbacks prometheus.Gauge
	totalSamples   prometheus.Gauge
	uptimeMs       prometheus.Gauge
	activeCount    prometheus.Gauge
	sampleRateHz   prometheus.Gauge
	blockSize      prometheus.Gauge
}

// NewMetrics registers the collector set against reg (pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	receiverLabels := []string{"receiver"}
	return &Metrics{
		active: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_active",
			Help: "1 if the receiver is enrolled in the barrier, else 0.",
		}, receiverLabels),
		frequency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_frequency_hz",
			Help: "Currently tuned frequency in Hz.",
		}, receiverLabels),
		samplesReceived: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_samples_received_total",
			Help: "Cumulative decoded samples received from the wire.",
		}, receiverLabels),
		bytesReceived: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_compressed_bytes_received_total",
			Help: "Cumulative compressed wire bytes received.",
		}, receiverLabels),
		throughputKBps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_throughput_kbps",
			Help: "Sliding 1s compressed-byte throughput in KiB/s.",
		}, receiverLabels),
		peakI: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_peak_i",
			Help: "Decaying peak I sample magnitude.",
		}, receiverLabels),
		peakQ: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_peak_q",
			Help: "Decaying peak Q sample magnitude.",
		}, receiverLabels),
		ringFill: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_ring_fill_ratio",
			Help: "Ring buffer fill level in [0,1].",
		}, receiverLabels),
		ringOverruns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_ring_overruns_total",
			Help: "Cumulative dropped writes due to a full ring.",
		}, receiverLabels),
		ringUnderruns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_ring_underruns_total",
			Help: "Cumulative empty reads substituted with silence.",
		}, receiverLabels),
		ringCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_receiver_ring_capacity",
			Help: "Ring buffer capacity in samples.",
		}, receiverLabels),
		totalCallbacks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_total_callbacks",
			Help: "Cumulative BlockAssembler callback invocations.",
		}),
		totalSamples: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_total_samples",
			Help: "Cumulative per-receiver samples processed by the assembler.",
		}),
		uptimeMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_uptime_ms",
			Help: "Engine uptime in milliseconds.",
		}),
		activeCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_active_receivers",
			Help: "Number of receivers currently enrolled in the barrier.",
		}),
		sampleRateHz: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_sample_rate_hz",
			Help: "Sample rate shared by all active receivers.",
		}),
		blockSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ubersdr_ingest_block_size",
			Help: "Block size in samples, derived from the block cadence.",
		}),
	}
}

// Observe pushes a Status snapshot into the collector set.
func (m *Metrics) Observe(s Status) {
	for i, rx := range s.Receivers {
		label := prometheus.Labels{"receiver": strconv.Itoa(i)}
		activeVal := 0.0
		if rx.Active {
			activeVal = 1.0
		}
		m.active.With(label).Set(activeVal)
		m.frequency.With(label).Set(float64(rx.Frequency))
		m.samplesReceived.With(label).Set(float64(rx.SamplesReceived))
		m.bytesReceived.With(label).Set(float64(rx.CompressedBytesReceived))
		m.throughputKBps.With(label).Set(float64(rx.ThroughputKBps))
		m.peakI.With(label).Set(float64(rx.PeakI))
		m.peakQ.With(label).Set(float64(rx.PeakQ))
		m.ringFill.With(label).Set(float64(rx.RingFill))
		m.ringOverruns.With(label).Set(float64(rx.RingOverruns))
		m.ringUnderruns.With(label).Set(float64(rx.RingUnderruns))
		m.ringCapacity.With(label).Set(float64(rx.RingCapacity))
	}

	m.totalCallbacks.Set(float64(s.TotalCallbacks))
	m.totalSamples.Set(float64(s.TotalSamples))
	m.uptimeMs.Set(float64(s.UptimeMs))
	m.activeCount.Set(float64(s.ActiveCount))
	m.sampleRateHz.Set(float64(s.SampleRateHz))
	m.blockSize.Set(float64(s.BlockSize))
}
