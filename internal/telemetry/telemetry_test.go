package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObservePopulatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	status := Status{
		Receivers: []ReceiverStatus{
			{Active: true, Frequency: 14074000, RingFill: 0.5, RingCapacity: 96000},
		},
		TotalCallbacks: 42,
		TotalSamples:   1000,
		ActiveCount:    1,
		SampleRateHz:   48000,
		BlockSize:      512,
	}
	m.Observe(status)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := map[string]float64{}
	for _, mf := range metricFamilies {
		for _, metric := range mf.GetMetric() {
			found[mf.GetName()] = gaugeValue(metric)
		}
	}

	if found["ubersdr_ingest_total_callbacks"] != 42 {
		t.Errorf("total_callbacks = %v, want 42", found["ubersdr_ingest_total_callbacks"])
	}
	if found["ubersdr_ingest_sample_rate_hz"] != 48000 {
		t.Errorf("sample_rate_hz = %v, want 48000", found["ubersdr_ingest_sample_rate_hz"])
	}
	if found["ubersdr_ingest_receiver_frequency_hz"] != 14074000 {
		t.Errorf("receiver_frequency_hz = %v, want 14074000", found["ubersdr_ingest_receiver_frequency_hz"])
	}
}

func gaugeValue(m *dto.Metric) float64 {
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}
