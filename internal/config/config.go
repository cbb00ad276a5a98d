package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type Config struct {
	ModelPath   string
	TrainedCkpt string
	EncoderPath string
	Device      string
	DType       string
	NumTokens   int

	WorkerURL        string
	WorkerTokenParam string

	TmpDir        string
	ArchiveBucket string
	ArchiveDir    string
	LogLevel      string
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		v, ok := lookup(key)
		return lo.Ternary(ok && strings.TrimSpace(v) != "", strings.TrimSpace(v), fallback)
	}

	cfg := Config{
		ModelPath:        get("MODEL_PATH", "pretrained_ckpt/flux.1-dev"),
		TrainedCkpt:      get("TRAINED_CKPT", "pretrained_ckpt/FLUX-customID.pt"),
		EncoderPath:      get("ENCODER_PATH", "pretrained_ckpt/openclip-vit-h-14"),
		Device:           get("DEVICE", "cuda"),
		DType:            get("DTYPE", "float16"),
		WorkerURL:        strings.TrimRight(get("WORKER_URL", "http://127.0.0.1:8188"), "/"),
		WorkerTokenParam: get("WORKER_TOKEN_PARAM", ""),
		TmpDir:           get("TMP_DIR", os.TempDir()),
		ArchiveBucket:    get("ARCHIVE_BUCKET", ""),
		ArchiveDir:       get("ARCHIVE_DIR", ""),
		LogLevel:         get("LOG_LEVEL", "info"),
	}

	tokens, err := strconv.Atoi(get("NUM_TOKENS", "64"))
	if err != nil {
		return Config{}, fmt.Errorf("NUM_TOKENS: %w", err)
	}
	if tokens <= 0 {
		return Config{}, fmt.Errorf("NUM_TOKENS: must be positive, got %d", tokens)
	}
	cfg.NumTokens = tokens

	return cfg, nil
}
