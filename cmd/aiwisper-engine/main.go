// Command aiwisper-engine is a thin smoke-test entrypoint wiring the
// core's components together: it is not a GUI or CLI product, just
// enough to run the coordinator and its façade standalone, mirroring
// the role the teacher's cmd/test* binaries played before the core
// grew a real configuration surface. Grounded on the teacher's
// main.go setupLogging + component wiring.
package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/velesar/aiwisper-engine/internal/api"
	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/config"
	"github.com/velesar/aiwisper-engine/internal/coordinator"
	"github.com/velesar/aiwisper-engine/internal/denoise"
	"github.com/velesar/aiwisper-engine/internal/diarize"
	"github.com/velesar/aiwisper-engine/internal/transcribe"
	"github.com/velesar/aiwisper-engine/internal/vad"
	"github.com/velesar/aiwisper-engine/internal/voiceprint"
)

func main() {
	setupLogging()

	root, _ := config.RootCommand()
	root.Run = func(_ *cobra.Command, _ []string) {
		run()
	}
	if err := root.Execute(); err != nil {
		log.Fatalf("aiwisper-engine: %v", err)
	}
}

// setupLogging mirrors main.go: stdlib logger with
// microsecond timestamps, optionally duplicated to a trace file.
func setupLogging() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if tracePath := os.Getenv("AIWISPER_TRACE_LOG"); tracePath != "" {
		f, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("aiwisper-engine: could not open trace log %s: %v", tracePath, err)
			return
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
}

func run() {
	resolved := config.FromViper()
	cfg := &resolved

	backend, err := buildTranscriptionBackend(*cfg)
	if err != nil {
		log.Fatalf("aiwisper-engine: transcription backend: %v", err)
	}

	var diarizer diarize.Backend
	if cfg.DiarizationMethod == "neural" && cfg.SegmentationModelPath != "" && cfg.EmbeddingModelPath != "" {
		s := diarize.NewSherpa(diarize.DefaultConfig(cfg.SegmentationModelPath, cfg.EmbeddingModelPath))
		if err := s.LoadModel(); err != nil {
			log.Printf("aiwisper-engine: diarization model load failed, falling back to channel-based: %v", err)
		} else {
			diarizer = s
		}
	}

	var denoiser denoise.Denoiser = denoise.PassThrough{}
	if cfg.DenoiseEnabled && cfg.DenoiseModelPath != "" {
		if neural, err := denoise.NewNeural(cfg.DenoiseModelPath, 0); err == nil {
			denoiser = neural
		} else {
			log.Printf("aiwisper-engine: denoiser model load failed, continuing without denoising: %v", err)
		}
	}

	detector := buildDetector(*cfg)

	loopbackCmd := os.Getenv("AIWISPER_LOOPBACK_CMD")
	coord := coordinator.New(cfg.Config, backend, diarizer, denoiser, detector,
		func() (capture.Capturer, error) { return capture.NewMicrophone() },
		func() capture.Capturer { return capture.NewLoopback(loopbackCmd) },
	)

	if cfg.EmbeddingModelPath != "" {
		if extractor, err := voiceprint.NewSherpaExtractor(cfg.EmbeddingModelPath, 1, "cpu"); err == nil {
			if store, err := voiceprint.NewStore(filepath.Join(cfg.DataDir, "voiceprints")); err == nil {
				coord.WithVoicePrints(extractor, store)
			} else {
				log.Printf("aiwisper-engine: voiceprint store unavailable: %v", err)
			}
		} else {
			log.Printf("aiwisper-engine: voiceprint extractor unavailable: %v", err)
		}
	}

	server := api.NewServer(api.Config{HTTPAddr: ":" + cfg.Port, GRPCAddr: cfg.GRPCAddr}, coord)
	server.Start()
}

func buildTranscriptionBackend(cfg config.Core) (transcribe.Backend, error) {
	w := transcribe.NewWhisper()
	if err := w.LoadModel(cfg.ModelPath); err != nil {
		return nil, err
	}
	return w, nil
}

func buildDetector(cfg config.Core) vad.Detector {
	if cfg.VADEngine == "neural" && cfg.VADModelPath != "" {
		neuralCfg := vad.DefaultNeuralConfig()
		neuralCfg.ModelPath = cfg.VADModelPath
		neuralCfg.Threshold = float32(cfg.SileroThreshold)
		neuralCfg.SilenceThresholdMs = cfg.VADSilenceThresholdMs
		if d, err := vad.NewNeuralDetector(neuralCfg); err == nil {
			return d
		} else {
			log.Printf("aiwisper-engine: neural VAD unavailable, falling back to energy: %v", err)
		}
	}
	energyCfg := vad.EnergyConfig{SilenceThresholdMs: cfg.VADSilenceThresholdMs}
	return vad.NewEnergyDetector(energyCfg)
}
