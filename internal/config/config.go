package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Audio player backends.
const (
	AudioNone = "none"
	AudioExec = "exec"
	AudioNATS = "nats"
)

type Config struct {
	APIBase     string        `validate:"required,url"`
	StopAPIBase string        `validate:"required,url"`
	AssetsBase  string        `validate:"required,url"`
	APIRate     float64       `validate:"gt=0"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	StoreDSN string `validate:"required"`

	LogFile  string
	LogLevel string `validate:"oneof=debug info warn error"`

	IPGeoURL string `validate:"omitempty,url"`

	Audio    string `validate:"oneof=none exec nats"`
	ClipCmd  string
	TTSCmd   string
	AudioDir string

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool
	MetricsAddr       string

	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.APIBase = strings.TrimRight(getenvDefault("ENROUTE_API_BASE", "https://birch.catenarymaps.org"), "/")
	cfg.StopAPIBase = strings.TrimRight(getenvDefault("ENROUTE_STOP_API_BASE", "https://birchdeparturesfromstop.catenarymaps.org"), "/")
	cfg.AssetsBase = strings.TrimRight(getenvDefault("ENROUTE_ASSETS_BASE", "http://127.0.0.1:4321"), "/")

	// Upstream rate limit (requests per second)
	if v := os.Getenv("ENROUTE_API_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid ENROUTE_API_RPS: %q", v)
		}
		cfg.APIRate = f
	} else {
		cfg.APIRate = 4
	}

	if v := os.Getenv("ENROUTE_HTTP_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid ENROUTE_HTTP_TIMEOUT_MS: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(ms) * time.Millisecond
	} else {
		cfg.HTTPTimeout = 10 * time.Second
	}

	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".enroute")

	cfg.StoreDSN = expandHome(getenvDefault("ENROUTE_STORE_DSN", filepath.Join(dataDir, "enroute.db")), home)

	cfg.LogFile = expandHome(os.Getenv("ENROUTE_LOG_FILE"), home)
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(dataDir, "logs", fmt.Sprintf("enroute-%s.log", time.Now().Format("2006-01-02")))
	}
	cfg.LogLevel = strings.ToLower(getenvDefault("ENROUTE_LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid ENROUTE_LOG_LEVEL: %q", cfg.LogLevel)
	}

	cfg.IPGeoURL = getenvDefault("ENROUTE_IP_GEO_URL", "http://ip-api.com/json")

	cfg.Audio = strings.ToLower(getenvDefault("ENROUTE_AUDIO", AudioNone))
	switch cfg.Audio {
	case AudioNone, AudioExec, AudioNATS:
	default:
		return nil, fmt.Errorf("invalid ENROUTE_AUDIO: %q", cfg.Audio)
	}
	// the clip command is handed both file paths and URLs (see ClipRoot)
	cfg.ClipCmd = getenvDefault("ENROUTE_CLIP_CMD", "ffplay -nodisp -autoexit -loglevel error")
	cfg.TTSCmd = getenvDefault("ENROUTE_TTS_CMD", "espeak")
	cfg.AudioDir = expandHome(os.Getenv("ENROUTE_AUDIO_DIR"), home)

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "enroute")
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		default:
			cfg.LogNATSSubjects = false
		}
	}
	if cfg.Audio == AudioNATS && cfg.NATSURL == "" {
		return nil, fmt.Errorf("ENROUTE_AUDIO=nats requires NATS_URL")
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ClipRoot is where the exec player resolves clip paths: the local audio
// directory when one is set, else the assets base URL.
func (c *Config) ClipRoot() string {
	if c.AudioDir != "" {
		return c.AudioDir
	}
	return c.AssetsBase
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
