package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"region-ocr/src/enhance"
)

const (
	EnvPathVar        = "REGION_OCR_ENV"
	APIKeyPathEnvVar  = "OCR_API_KEY_FILE"
	APIKeyEnvVar      = "OCR_API_KEY"
	DefaultModeEnvVar = "DEFAULT_MODE"

	DefaultEndpoint       = "http://localhost:8080/api/ocr/enhanced"
	DefaultUploadEndpoint = "http://localhost:8080/api/ocr/file"
	DefaultHistoryDB      = "region_ocr_history.db"
)

type LoadOptions struct {
	EnvPathOverride     string
	APIKeyPathOverride  string
	DefaultModeOverride string
	EndpointOverride    string
}

type Config struct {
	Endpoint       string
	UploadEndpoint string
	Language       string
	APIKey         string
	APIKeyPath     string

	DefaultMode     enhance.Mode
	EnhanceProfiles string
	MaxOutputWidth  int
	MinSelection    float64
	OCRDeadlineSec  int

	HistoryDB    string
	HistoryLimit int

	BrowserURL     string
	Hotkey         string
	NotifyInterval time.Duration

	EnableFileLogging bool
	LogLevel          slog.Level

	ServerAddr     string
	TessdataPrefix string
}

// Deadline is the transcription timeout.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.OCRDeadlineSec) * time.Second
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order: explicit override, .env next to the
	// executable, then the file named by REGION_OCR_ENV. Real environment
	// variables always win over .env values.
	envPath := resolveEnvPath(opts.EnvPathOverride)
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	mode, err := resolveDefaultMode(opts)
	if err != nil {
		return nil, err
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)
	endpoint := getEnvWithDefault("OCR_ENDPOINT", DefaultEndpoint)
	if o := strings.TrimSpace(opts.EndpointOverride); o != "" {
		endpoint = o
	}

	cfg := &Config{
		Endpoint:          endpoint,
		UploadEndpoint:    getEnvWithDefault("OCR_UPLOAD_ENDPOINT", DefaultUploadEndpoint),
		Language:          getEnvWithDefault("OCR_LANGUAGE", "eng"),
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		DefaultMode:       mode,
		EnhanceProfiles:   os.Getenv("ENHANCE_PROFILES"),
		MaxOutputWidth:    getEnvInt("MAX_OUTPUT_WIDTH", 0, 0),
		MinSelection:      float64(getEnvInt("MIN_SELECTION", 10, 1)),
		OCRDeadlineSec:    getEnvInt("OCR_DEADLINE_SEC", 20, 1),
		HistoryDB:         getEnvWithDefault("HISTORY_DB", DefaultHistoryDB),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 20, 1),
		BrowserURL:        os.Getenv("BROWSER_URL"),
		Hotkey:            getEnvWithDefault("HOTKEY", "Ctrl+Alt+Q"),
		NotifyInterval:    time.Duration(getEnvInt("NOTIFY_INTERVAL_MS", 2000, 1)) * time.Millisecond,
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		LogLevel:          parseLevel(os.Getenv("LOG_LEVEL")),
		ServerAddr:        getEnvWithDefault("SERVER_ADDR", ":8080"),
		TessdataPrefix:    os.Getenv("TESSDATA_PREFIX"),
	}
	return cfg, nil
}

func resolveEnvPath(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
		return ""
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}
	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}
	return values
}

// resolveAPIKeyPath picks the key file: CLI override, then .env, then the
// process environment.
func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	var keyPath string
	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}
	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}
	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}
	return keyPath
}

// resolveAPIKey prefers a non-empty key file over OCR_API_KEY.
func resolveAPIKey(keyPath string) string {
	if keyPath != "" {
		if data, err := os.ReadFile(keyPath); err == nil {
			if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
				return fileKey
			}
		}
	}
	return strings.TrimSpace(os.Getenv(APIKeyEnvVar))
}

// resolveDefaultMode rejects an unknown mode given on the command line and
// falls back to grayscaleThreshold for an unknown environment value.
func resolveDefaultMode(opts LoadOptions) (enhance.Mode, error) {
	if override := strings.TrimSpace(opts.DefaultModeOverride); override != "" {
		m, err := enhance.ParseMode(override)
		if err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return m, nil
	}
	if m, err := enhance.ParseMode(os.Getenv(DefaultModeEnvVar)); err == nil {
		return m, nil
	}
	return enhance.ModeGrayscaleThreshold, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of key, or def when it is unset,
// malformed or below min.
func getEnvInt(key string, def, min int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
