// Command ubersdr-ingest connects to an UberSDR server, ingests and paces
// the configured receivers' I/Q streams, and exposes their status over
// HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwsl/ubersdr-ingest/internal/apiserver"
	"github.com/cwsl/ubersdr-ingest/internal/config"
	"github.com/cwsl/ubersdr-ingest/internal/engine"
	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
	"github.com/cwsl/ubersdr-ingest/internal/mode"
	"github.com/cwsl/ubersdr-ingest/internal/telemetry"
	"github.com/cwsl/ubersdr-ingest/internal/wavdump"
)

const observeInterval = 2 * time.Second

func main() {
	configFileFlag := flag.String("config-file", "", "path to the ingest configuration YAML file")
	apiAddrFlag := flag.String("api-addr", ":8090", "address for the status/control HTTP API")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ubersdr-ingest: client-side I/Q ingestion and pacing engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s --config-file /path/to/config.yaml [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *configFileFlag == "" {
		fmt.Fprintln(os.Stderr, "ubersdr-ingest: --config-file is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFileFlag)
	if err != nil {
		log.Fatalf("ubersdr-ingest: %v", err)
	}

	logger := log.Default()
	eng := engine.New(cfg, logger)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	wavWriters := installDebugCallback(eng, cfg, logger)

	apiSrv := apiserver.New(eng, *apiAddrFlag, logger)

	stopMetrics := make(chan struct{})
	go observeLoop(eng, metrics, stopMetrics)

	for i, rx := range cfg.Receivers {
		if err := eng.StartReceiver(i, rx.Frequency, rx.Mode); err != nil {
			logger.Printf("ubersdr-ingest: receiver %d failed to start: %v", i, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := apiSrv.ListenAndServe(); err != nil {
			logger.Printf("ubersdr-ingest: api server: %v", err)
		}
	}()

	<-sigChan
	logger.Println("ubersdr-ingest: shutting down")
	close(stopMetrics)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiSrv.Stop(ctx); err != nil {
		logger.Printf("ubersdr-ingest: api server shutdown: %v", err)
	}

	eng.Shutdown()
	for _, w := range wavWriters {
		if w != nil {
			w.Close()
		}
	}
}

func observeLoop(eng *engine.Engine, metrics *telemetry.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(observeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.Observe(eng.ReadStatus())
		}
	}
}

// installDebugCallback wires an optional per-receiver WAV dump into the
// engine's block callback when config.Debug.WAVDir is set (spec §12
// supplement). Returns the writers so main can flush them on shutdown.
func installDebugCallback(eng *engine.Engine, cfg *config.Config, logger *log.Logger) []*wavdump.Writer {
	if cfg.Debug.WAVDir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Debug.WAVDir, 0o755); err != nil {
		logger.Printf("ubersdr-ingest: debug wav dir: %v", err)
		return nil
	}

	writers := make([]*wavdump.Writer, len(cfg.Receivers))
	eng.InstallCallback(func(blocks []*iqsample.Block, mask uint64) {
		for i, block := range blocks {
			if mask&(1<<uint(i)) == 0 {
				continue
			}
			w := writers[i]
			if w == nil {
				rate, _ := receiverSampleRate(cfg, i)
				path := fmt.Sprintf("%s/receiver-%d.wav", cfg.Debug.WAVDir, i)
				created, err := wavdump.Create(path, rate)
				if err != nil {
					logger.Printf("ubersdr-ingest: create debug wav for receiver %d: %v", i, err)
					continue
				}
				writers[i] = created
				w = created
			}
			if err := w.WriteBlock(block); err != nil {
				logger.Printf("ubersdr-ingest: write debug wav for receiver %d: %v", i, err)
			}
		}
	})
	return writers
}

func receiverSampleRate(cfg *config.Config, i int) (int, bool) {
	if i >= len(cfg.Receivers) {
		return 48000, false
	}
	rate, ok := mode.SampleRate(mode.Mode(cfg.Receivers[i].Mode))
	if !ok {
		return 48000, false
	}
	return rate, true
}
