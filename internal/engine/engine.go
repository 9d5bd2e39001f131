// Package engine implements the public façade (spec component C7,
// SupervisorAPI): start/stop/retune per receiver, callback installation,
// and telemetry read, owning the lifetimes of every other component.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/ubersdr-ingest/internal/assembler"
	"github.com/cwsl/ubersdr-ingest/internal/config"
	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
	"github.com/cwsl/ubersdr-ingest/internal/mode"
	"github.com/cwsl/ubersdr-ingest/internal/ringbuffer"
	"github.com/cwsl/ubersdr-ingest/internal/sampleproducer"
	"github.com/cwsl/ubersdr-ingest/internal/session"
	"github.com/cwsl/ubersdr-ingest/internal/shifter"
	"github.com/cwsl/ubersdr-ingest/internal/telemetry"
)

// ErrConfig marks an invalid request rejected synchronously without any
// state change (spec §7: "ConfigError ... reported synchronously to caller
// of SupervisorAPI; no state change").
type ErrConfig struct{ msg string }

func (e *ErrConfig) Error() string { return "engine: config error: " + e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &ErrConfig{msg: fmt.Sprintf(format, args...)}
}

// startTimeout bounds how long start_receiver waits for Connected (spec §5).
const startTimeout = 5 * time.Second

// stopTimeout bounds how long stop_receiver waits for teardown (spec §5).
const stopTimeout = 5 * time.Second

// Engine is the SupervisorAPI façade over C1-C6 for a fixed set of N
// receiver slots.
type Engine struct {
	cfg       config.Config
	logger    *log.Logger
	startTime time.Time

	mu           sync.Mutex // the top-level "SupervisorAPI" lock
	receivers    []*receiver
	sampleRateHz int
	blockSize    int
	assembler    *assembler.Assembler

	callback atomic.Pointer[assembler.Callback]
}

// New builds an Engine with len(cfg.Receivers) slots (at least one), none
// active yet. The
// assembler and its shared sample rate/block size are established lazily
// on the first successful start_receiver call.
func New(cfg *config.Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	n := len(cfg.Receivers)
	if n == 0 {
		n = 1
	}
	e := &Engine{
		cfg:       *cfg,
		logger:    logger,
		startTime: time.Now(),
		receivers: make([]*receiver, n),
	}
	for i := range e.receivers {
		e.receivers[i] = &receiver{id: i}
	}
	noop := assembler.Callback(func([]*iqsample.Block, uint64) {})
	e.callback.Store(&noop)
	return e
}

// InstallCallback atomically replaces the downstream block callback.
func (e *Engine) InstallCallback(fn assembler.Callback) {
	e.callback.Store(&fn)
}

func (e *Engine) dispatch(blocks []*iqsample.Block, mask uint64) {
	cb := e.callback.Load()
	(*cb)(blocks, mask)
}

// StartReceiver admits and connects receiver i at freq/modeStr, blocking
// until Connected or startTimeout elapses (spec §5).
func (e *Engine) StartReceiver(i int, freq uint64, modeStr string) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.receivers) {
		e.mu.Unlock()
		return configErrorf("receiver id %d out of range [0,%d)", i, len(e.receivers))
	}
	m := mode.Mode(modeStr)
	rate, ok := mode.SampleRate(m)
	if !ok {
		e.mu.Unlock()
		return configErrorf("unrecognized mode %q", modeStr)
	}
	if e.sampleRateHz != 0 && rate != e.sampleRateHz {
		e.mu.Unlock()
		return configErrorf("mode %q (%d Hz) does not match active rate %d Hz", modeStr, rate, e.sampleRateHz)
	}
	if e.sampleRateHz == 0 {
		e.sampleRateHz = rate
		e.blockSize = mode.BlockSize(rate, mode.BlockCadenceHz)
		e.assembler = assembler.New(len(e.receivers), e.sampleRateHz, e.blockSize, e.dispatch, e.logger)
		go e.assembler.Run()
	}
	rx := e.receivers[i]
	e.mu.Unlock()

	rx.mu.Lock()
	if rx.active {
		rx.mu.Unlock()
		return configErrorf("receiver %d already active", i)
	}
	rx.mode = m
	rx.frequency = freq
	if i < len(e.cfg.Receivers) {
		rx.offsetHz = e.cfg.Receivers[i].OffsetHz
	}
	offsetHz := rx.offsetHz
	rx.mu.Unlock()

	ringCapacity := int(float64(rate) * e.cfg.Ring.SecondsCapacity)
	ring := ringbuffer.New(ringCapacity)
	sh := shifter.New()
	sh.SetOffset(offsetHz, rate)
	producer := sampleproducer.New(ring)

	decoder, err := newDecoderForFormat(e.receiverFormat(i), rate)
	if err != nil {
		return fmt.Errorf("engine: build decoder for receiver %d: %w", i, err)
	}

	handler := &receiverHandler{rx: rx, logger: e.logger}
	sessCfg := e.sessionConfigFor(i, freq, modeStr)
	controller := session.New(sessCfg, handler, e.logger)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := controller.Start(ctx); err != nil {
		decoder.Close()
		return err // AdmissionRejected or connect failure, reported synchronously per spec §7
	}

	rx.mu.Lock()
	rx.active = true
	rx.ring = ring
	rx.shifter = sh
	rx.producer = producer
	rx.decoder = decoder
	rx.controller = controller
	rx.sessionID = controller.SessionID()
	runCtx, runCancel := context.WithCancel(context.Background())
	rx.cancelRun = runCancel
	rx.mu.Unlock()

	go controller.Run(runCtx)

	e.mu.Lock()
	e.assembler.Activate(i, ring, sh)
	e.mu.Unlock()

	return nil
}

// StopReceiver tears down receiver i and deregisters it from the barrier.
func (e *Engine) StopReceiver(i int) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.receivers) {
		e.mu.Unlock()
		return configErrorf("receiver id %d out of range [0,%d)", i, len(e.receivers))
	}
	rx := e.receivers[i]
	asm := e.assembler
	e.mu.Unlock()

	rx.mu.Lock()
	if !rx.active {
		rx.mu.Unlock()
		return nil
	}
	controller := rx.controller
	cancelRun := rx.cancelRun
	decoder := rx.decoder
	rx.active = false
	rx.mu.Unlock()

	if asm != nil {
		asm.Deactivate(i)
	}

	if cancelRun != nil {
		cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := controller.Stop(ctx); err != nil {
		e.logger.Printf("engine: receiver %d: stop did not complete within %v: %v", i, stopTimeout, err)
	}
	if decoder != nil {
		decoder.Close()
	}

	rx.mu.Lock()
	rx.ring = nil
	rx.shifter = nil
	rx.producer = nil
	rx.decoder = nil
	rx.controller = nil
	rx.mu.Unlock()

	return nil
}

// SetFrequency retunes receiver i, or stores the value for later if the
// receiver is inactive (spec §5: "receiver inactive (no-op store only)").
func (e *Engine) SetFrequency(i int, freq uint64) error {
	e.mu.Lock()
	if i < 0 || i >= len(e.receivers) {
		e.mu.Unlock()
		return configErrorf("receiver id %d out of range [0,%d)", i, len(e.receivers))
	}
	rx := e.receivers[i]
	e.mu.Unlock()

	rx.mu.Lock()
	if !rx.active {
		rx.frequency = freq
		rx.mu.Unlock()
		return nil
	}
	controller := rx.controller
	rx.frequency = freq
	rx.mu.Unlock()

	return controller.SetFrequency(freq)
}

// ReadStatus snapshots the full engine state for telemetry (spec §5/§6).
func (e *Engine) ReadStatus() telemetry.Status {
	e.mu.Lock()
	receivers := make([]*receiver, len(e.receivers))
	copy(receivers, e.receivers)
	asm := e.assembler
	sampleRate := e.sampleRateHz
	blockSize := e.blockSize
	e.mu.Unlock()

	statuses := make([]telemetry.ReceiverStatus, len(receivers))
	var activeCount uint8

	for i, rx := range receivers {
		rx.mu.Lock()
		st := telemetry.ReceiverStatus{
			Active:    rx.active,
			Frequency: rx.frequency,
			Mode:      string(rx.mode),
			SessionID: rx.sessionID,
		}
		if rx.controller != nil {
			st.State = rx.controller.State().String()
		}
		if rx.producer != nil {
			st.SamplesReceived = rx.producer.SamplesReceived()
			st.CompressedBytesReceived = rx.producer.CompressedBytesReceived()
			st.ThroughputKBps = rx.producer.ThroughputKBps()
			peakI, peakQ := rx.producer.PublishPeaks()
			st.PeakI, st.PeakQ = peakI, peakQ
		}
		if rx.ring != nil {
			st.RingFill = rx.ring.FillLevel()
			st.RingOverruns = rx.ring.Overruns()
			st.RingUnderruns = rx.ring.Underruns()
			st.RingCapacity = uint32(rx.ring.Capacity())
		}
		if rx.active {
			activeCount++
		}
		rx.mu.Unlock()
		statuses[i] = st
	}

	var totalCallbacks, totalSamples uint64
	if asm != nil {
		totalCallbacks = asm.TotalCallbacks()
		totalSamples = asm.TotalSamples()
	}

	return telemetry.Status{
		Receivers:      statuses,
		TotalCallbacks: totalCallbacks,
		TotalSamples:   totalSamples,
		UptimeMs:       uint64(time.Since(e.startTime).Milliseconds()),
		ActiveCount:    activeCount,
		SampleRateHz:   uint32(sampleRate),
		BlockSize:      uint32(blockSize),
	}
}

// Shutdown stops every active receiver and the pacing loop.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	n := len(e.receivers)
	asm := e.assembler
	e.mu.Unlock()

	for i := 0; i < n; i++ {
		_ = e.StopReceiver(i)
	}
	if asm != nil {
		asm.Stop()
	}
}

func (e *Engine) receiverFormat(i int) string {
	if i < len(e.cfg.Receivers) {
		return e.cfg.Receivers[i].Format
	}
	return ""
}

func (e *Engine) sessionConfigFor(i int, freq uint64, modeStr string) session.Config {
	cfg := session.DefaultConfig()
	cfg.Host = e.cfg.Server.Host
	cfg.Port = e.cfg.Server.Port
	cfg.TLS = e.cfg.Server.TLS
	cfg.Password = e.cfg.Admission.Password
	cfg.Frequency = freq
	cfg.Mode = modeStr
	if i < len(e.cfg.Receivers) {
		cfg.Format = e.cfg.Receivers[i].Format
		cfg.BandwidthLow = e.cfg.Receivers[i].BandwidthLow
		cfg.BandwidthHigh = e.cfg.Receivers[i].BandwidthHigh
	}
	return cfg
}
