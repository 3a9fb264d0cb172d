// Package config implements the §6 "Configuration surface consumed by
// the core": the recognized options, their defaults, and the
// clamping/default-reversion rules for out-of-range or unrecognized
// values. Built on spf13/cobra + spf13/viper, the config stack
// `tphakala-birdnet-go` carries, generalizing the teacher's flag-based
// internal/config/config.go to the richer library the rest of the
// pack uses for the same concern.
package config

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velesar/aiwisper-engine/internal/coordinator"
)

// Core mirrors coordinator.Config plus the ambient options (model/data
// directories, VAD/diarization model selection, the thin façade's
// listen addresses) that sit outside the coordinator's own
// strategy-selection surface.
type Core struct {
	coordinator.Config

	ModelPath             string
	DataDir               string
	ModelsDir             string
	Port                  string
	GRPCAddr              string
	VADEngine             string // "energy" or "neural"
	VADModelPath          string
	VADSilenceThresholdMs int
	VADMinSpeechMs        int
	SileroThreshold       float64
	DenoiseEnabled        bool
	DenoiseModelPath      string
	SegmentationModelPath string
	EmbeddingModelPath    string
}

// Defaults returns the spec §6 defaults for every option.
func Defaults() Core {
	return Core{
		Config:                coordinator.DefaultConfig(),
		ModelPath:             "ggml-base.bin",
		DataDir:               "data/sessions",
		Port:                  "8080",
		GRPCAddr:              defaultGRPCAddress(),
		VADEngine:             "energy",
		VADSilenceThresholdMs: 1000,
		VADMinSpeechMs:        100,
		SileroThreshold:       0.5,
		DenoiseEnabled:        false,
	}
}

func defaultGRPCAddress() string {
	if runtime.GOOS == "windows" {
		return `npipe:////./pipe/aiwisper-grpc`
	}
	return "unix:/tmp/aiwisper-grpc.sock"
}

var boundViper *viper.Viper

// RootCommand builds the cobra root command for the core's standalone
// smoke-test entrypoint (cmd/aiwisper-engine). Flags are bound to
// viper so AIWISPER_-prefixed environment variables can also supply
// them, mirroring layered config resolution. The
// returned Core is populated once the command executes; call
// FromViper after that to read the normalized result.
func RootCommand() (*cobra.Command, *Core) {
	cfg := Defaults()

	root := &cobra.Command{
		Use:   "aiwisper-engine",
		Short: "Offline speech-to-text capture and segmentation engine",
	}

	v := viper.New()
	v.SetEnvPrefix("AIWISPER")
	v.AutomaticEnv()

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path to the transcription model")
	flags.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory for session data")
	flags.StringVar(&cfg.ModelsDir, "models", cfg.ModelsDir, "Directory for downloaded models (default: dataDir/../models)")
	flags.StringVar(&cfg.Port, "port", cfg.Port, "WebSocket façade listen port")
	flags.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC control-plane listen address (unix:/path or npipe:////./pipe/name)")
	flags.StringVar(&cfg.Language, "language", cfg.Language, "Language hint for Whisper-like backends")
	flags.BoolVar(&cfg.ContinuousMode, "continuous", cfg.ContinuousMode, "Enable segmented dictation")
	flags.BoolVar(&cfg.UseVAD, "use-vad", cfg.UseVAD, "Use VAD-driven segmentation instead of fixed intervals")
	flags.Float64Var(&cfg.SegmentIntervalSecs, "segment-interval-secs", cfg.SegmentIntervalSecs, "Non-VAD segmentation interval (1-300s)")
	flags.IntVar(&cfg.MaxSegmentSecs, "max-segment-secs", cfg.MaxSegmentSecs, "Forced split cap in seconds")
	flags.StringVar(&cfg.VADEngine, "vad-engine", cfg.VADEngine, "VAD implementation: energy or neural")
	flags.StringVar(&cfg.VADModelPath, "vad-model", cfg.VADModelPath, "Path to the neural VAD (Silero) ONNX model")
	flags.IntVar(&cfg.VADSilenceThresholdMs, "vad-silence-threshold-ms", cfg.VADSilenceThresholdMs, "Trailing silence required to detect speech end")
	flags.IntVar(&cfg.VADMinSpeechMs, "vad-min-speech-ms", cfg.VADMinSpeechMs, "Minimum speech run length")
	flags.Float64Var(&cfg.SileroThreshold, "silero-threshold", cfg.SileroThreshold, "Neural VAD speech probability threshold (0-1)")
	flags.BoolVar(&cfg.DenoiseEnabled, "denoise", cfg.DenoiseEnabled, "Enable denoising before transcription")
	flags.StringVar(&cfg.DenoiseModelPath, "denoise-model", cfg.DenoiseModelPath, "Path to the denoiser ONNX model")
	flags.StringVar(&cfg.DiarizationMethod, "diarization-method", cfg.DiarizationMethod, "channel or neural")
	flags.StringVar(&cfg.SegmentationModelPath, "diarization-segmentation-model", cfg.SegmentationModelPath, "Path to the diarization segmentation model")
	flags.StringVar(&cfg.EmbeddingModelPath, "diarization-embedding-model", cfg.EmbeddingModelPath, "Path to the diarization/voiceprint embedding model")

	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("config: bind flags: %v", err))
	}
	boundViper = v

	return root, &cfg
}

// FromViper reconstructs a Core from the process's resolved
// flag/env state and applies the §6 clamping/default-reversion rules.
// Exposed separately from RootCommand so tests can drive normalization
// without executing cobra.
func FromViper() Core {
	cfg := Defaults()
	if boundViper == nil {
		return cfg.Normalize()
	}

	if v := boundViper.GetString("model"); v != "" {
		cfg.ModelPath = v
	}
	if v := boundViper.GetString("data"); v != "" {
		cfg.DataDir = v
	}
	cfg.ModelsDir = boundViper.GetString("models")
	cfg.Port = boundViper.GetString("port")
	cfg.GRPCAddr = boundViper.GetString("grpc-addr")
	if v := boundViper.GetString("language"); v != "" {
		cfg.Language = v
	}
	cfg.ContinuousMode = boundViper.GetBool("continuous")
	cfg.UseVAD = boundViper.GetBool("use-vad")
	cfg.SegmentIntervalSecs = boundViper.GetFloat64("segment-interval-secs")
	cfg.MaxSegmentSecs = boundViper.GetInt("max-segment-secs")
	cfg.VADEngine = boundViper.GetString("vad-engine")
	cfg.VADModelPath = boundViper.GetString("vad-model")
	cfg.VADSilenceThresholdMs = boundViper.GetInt("vad-silence-threshold-ms")
	cfg.VADMinSpeechMs = boundViper.GetInt("vad-min-speech-ms")
	cfg.SileroThreshold = boundViper.GetFloat64("silero-threshold")
	cfg.DenoiseEnabled = boundViper.GetBool("denoise")
	cfg.DenoiseModelPath = boundViper.GetString("denoise-model")
	cfg.DiarizationMethod = boundViper.GetString("diarization-method")
	cfg.SegmentationModelPath = boundViper.GetString("diarization-segmentation-model")
	cfg.EmbeddingModelPath = boundViper.GetString("diarization-embedding-model")

	return cfg.Normalize()
}

// Normalize applies §6's clamping/default-reversion rules to the
// ambient fields this package adds on top of coordinator.Config
// (whose own Normalize already handles SegmentIntervalSecs,
// MaxSegmentSecs, DiarizationMethod, and Language).
func (c Core) Normalize() Core {
	c.Config = c.Config.Normalize()
	switch c.VADEngine {
	case "energy", "neural":
	default:
		c.VADEngine = "energy"
	}
	if c.SileroThreshold < 0 || c.SileroThreshold > 1 {
		c.SileroThreshold = 0.5
	}
	if c.VADSilenceThresholdMs < 0 {
		c.VADSilenceThresholdMs = 1000
	}
	if c.VADMinSpeechMs < 0 {
		c.VADMinSpeechMs = 100
	}
	if c.ModelsDir == "" {
		c.ModelsDir = c.DataDir + "/../models"
	}
	return c
}
