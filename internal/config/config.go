package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"selfie-capture-kiosk/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file applied after the environment.
const FileEnv = "CAPTURE_CONFIG_FILE"

// Loader builds a models.Config from defaults, an optional .env file,
// environment variables and an optional YAML file, in that order.
type Loader struct {
	useDotEnv bool
	lookup    func(string) (string, bool)
	file      string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookup:    os.LookupEnv,
	}
}

// WithDotEnv toggles reading a .env file before the environment.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithLookup replaces the environment source (tests).
func (l *Loader) WithLookup(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// WithFile sets the YAML file, taking precedence over CAPTURE_CONFIG_FILE.
func (l *Loader) WithFile(path string) *Loader {
	l.file = path
	return l
}

// Load is shorthand for NewLoader().Load().
func Load() (*models.Config, error) {
	return NewLoader().Load()
}

func (l *Loader) Load() (*models.Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️  Could not load .env file: %v", err)
		}
	}

	cfg := models.DefaultConfig()
	if err := l.applyEnv(&cfg); err != nil {
		return nil, err
	}

	path := l.file
	if path == "" {
		path = l.getEnv(FileEnv, "")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ============================================================
// ENVIRONMENT
// ============================================================

func (l *Loader) applyEnv(cfg *models.Config) error {
	var err error
	collect := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	cfg.Server.Addr = l.getEnv("SERVER_ADDR", cfg.Server.Addr)
	if origins := l.getEnv("ALLOW_ORIGINS", ""); origins != "" {
		cfg.Server.AllowOrigins = splitList(origins)
	}
	cfg.Server.AutoStart = l.getBool("AUTO_START", cfg.Server.AutoStart, collect)

	cfg.Camera.Source = l.getEnv("CAMERA_SOURCE", cfg.Camera.Source)
	cfg.Camera.DeviceID = l.getInt("CAMERA_DEVICE_ID", cfg.Camera.DeviceID, collect)
	cfg.Camera.FacingMode = l.getEnv("CAMERA_FACING_MODE", cfg.Camera.FacingMode)
	cfg.Camera.IdealWidth = l.getInt("CAMERA_WIDTH", cfg.Camera.IdealWidth, collect)
	cfg.Camera.IdealHeight = l.getInt("CAMERA_HEIGHT", cfg.Camera.IdealHeight, collect)

	cfg.Detector.Backend = l.getEnv("DETECTOR_BACKEND", cfg.Detector.Backend)
	cfg.Detector.ModelLocation = l.getEnv("MODEL_URL", cfg.Detector.ModelLocation)
	cfg.Detector.CacheDir = l.getEnv("MODEL_CACHE_DIR", cfg.Detector.CacheDir)
	cfg.Detector.FaceModel = l.getEnv("FACE_MODEL", cfg.Detector.FaceModel)
	cfg.Detector.CascadeModel = l.getEnv("CASCADE_MODEL", cfg.Detector.CascadeModel)
	cfg.Detector.ExpressionModel = l.getEnv("EXPRESSION_MODEL", cfg.Detector.ExpressionModel)
	cfg.Detector.ScoreThreshold = float32(l.getFloat("SCORE_THRESHOLD", float64(cfg.Detector.ScoreThreshold), collect))
	cfg.Detector.MinFaceSize = l.getInt("MIN_FACE_SIZE", cfg.Detector.MinFaceSize, collect)

	if s := l.getEnv("VALIDATION_STRICTNESS", ""); s != "" {
		preset, ok := models.ValidationPreset(models.Strictness(s))
		if !ok {
			collect(fmt.Errorf("VALIDATION_STRICTNESS: unknown strictness %q", s))
		} else {
			cfg.Validation = preset
		}
	}
	cfg.Validation.MinCoverage = l.getFloat("MIN_COVERAGE", cfg.Validation.MinCoverage, collect)
	cfg.Validation.CenterTolerance = l.getFloat("CENTER_TOLERANCE", cfg.Validation.CenterTolerance, collect)
	cfg.Validation.ExpressionCeiling = l.getFloat("EXPRESSION_CEILING", cfg.Validation.ExpressionCeiling, collect)
	if list := l.getEnv("DISALLOWED_EXPRESSIONS", ""); list != "" {
		cfg.Validation.DisallowedExpressions = nil
		for _, e := range splitList(list) {
			cfg.Validation.DisallowedExpressions = append(cfg.Validation.DisallowedExpressions, models.Expression(e))
		}
	}

	cfg.Capture.JPEGQuality = l.getInt("JPEG_QUALITY", cfg.Capture.JPEGQuality, collect)
	cfg.Capture.PreviewLength = l.getInt("PREVIEW_LENGTH", cfg.Capture.PreviewLength, collect)

	cfg.Session.TickInterval = l.getDuration("TICK_INTERVAL", cfg.Session.TickInterval, collect)
	cfg.Session.Verbose = l.getBool("VERBOSE", cfg.Session.Verbose, collect)

	return err
}

func (l *Loader) getEnv(key, fallback string) string {
	if value, exists := l.lookup(key); exists && value != "" {
		return value
	}
	return fallback
}

func (l *Loader) getInt(key string, fallback int, collect func(error)) int {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (l *Loader) getFloat(key string, fallback float64, collect func(error)) float64 {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (l *Loader) getBool(key string, fallback bool, collect func(error)) bool {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (l *Loader) getDuration(key string, fallback time.Duration, collect func(error)) time.Duration {
	raw := l.getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================
// FILE
// ============================================================

// applyFile overlays a YAML file. A strictness change swaps in that preset
// first so the file only needs to list the thresholds it changes.
func applyFile(cfg *models.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var probe struct {
		Validation struct {
			Strictness models.Strictness `yaml:"strictness"`
		} `yaml:"validation"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if s := probe.Validation.Strictness; s != "" && s != cfg.Validation.Strictness {
		preset, ok := models.ValidationPreset(s)
		if !ok {
			return fmt.Errorf("config file %s: unknown strictness %q", path, s)
		}
		cfg.Validation = preset
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ============================================================
// VALIDATION
// ============================================================

func Validate(cfg *models.Config) error {
	switch cfg.Camera.Source {
	case models.CameraSourceDevice, models.CameraSourceWebRTC:
	default:
		return fmt.Errorf("camera source must be %q or %q, got %q",
			models.CameraSourceDevice, models.CameraSourceWebRTC, cfg.Camera.Source)
	}
	switch cfg.Detector.Backend {
	case models.DetectorBackendYuNet, models.DetectorBackendHaar:
	default:
		return fmt.Errorf("detector backend must be %q or %q, got %q",
			models.DetectorBackendYuNet, models.DetectorBackendHaar, cfg.Detector.Backend)
	}
	if _, ok := models.ValidationPreset(cfg.Validation.Strictness); !ok {
		return fmt.Errorf("unknown strictness %q", cfg.Validation.Strictness)
	}
	if cfg.Validation.MinCoverage <= 0 || cfg.Validation.MinCoverage >= 1 {
		return fmt.Errorf("min coverage must be in (0, 1), got %v", cfg.Validation.MinCoverage)
	}
	if cfg.Validation.Strictness == models.StrictnessStrict {
		if cfg.Validation.CenterTolerance <= 0 || cfg.Validation.CenterTolerance > 0.5 {
			return fmt.Errorf("center tolerance must be in (0, 0.5], got %v", cfg.Validation.CenterTolerance)
		}
		if cfg.Validation.ExpressionCeiling < 0 || cfg.Validation.ExpressionCeiling > 1 {
			return fmt.Errorf("expression ceiling must be in [0, 1], got %v", cfg.Validation.ExpressionCeiling)
		}
	}
	if cfg.Capture.JPEGQuality < 1 || cfg.Capture.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in [1, 100], got %d", cfg.Capture.JPEGQuality)
	}
	if cfg.Camera.IdealWidth <= 0 || cfg.Camera.IdealHeight <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", cfg.Camera.IdealWidth, cfg.Camera.IdealHeight)
	}
	if cfg.Session.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", cfg.Session.TickInterval)
	}
	return nil
}
