package models

import "time"

// ============================================================
// CONFIGURATION
// ============================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Validation ValidationConfig `yaml:"validation"`
	Capture    CaptureConfig    `yaml:"capture"`
	Session    SessionConfig    `yaml:"session"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	AutoStart    bool     `yaml:"auto_start"`
}

const (
	CameraSourceDevice = "device"
	CameraSourceWebRTC = "webrtc"

	FacingModeUser        = "user"
	FacingModeEnvironment = "environment"
)

type CameraConfig struct {
	Source      string `yaml:"source"`
	DeviceID    int    `yaml:"device_id"`
	FacingMode  string `yaml:"facing_mode"`
	IdealWidth  int    `yaml:"ideal_width"`
	IdealHeight int    `yaml:"ideal_height"`
}

const (
	DetectorBackendYuNet = "yunet"
	DetectorBackendHaar  = "haar"
)

type DetectorConfig struct {
	Backend string `yaml:"backend"`
	// ModelLocation is a local directory or an http(s) base URL.
	ModelLocation   string  `yaml:"model_location"`
	CacheDir        string  `yaml:"cache_dir"`
	FaceModel       string  `yaml:"face_model"`
	CascadeModel    string  `yaml:"cascade_model"`
	ExpressionModel string  `yaml:"expression_model"`
	ScoreThreshold  float32 `yaml:"score_threshold"`
	MinFaceSize     int     `yaml:"min_face_size"`
}

type Strictness string

const (
	StrictnessStrict  Strictness = "strict"
	StrictnessLenient Strictness = "lenient"
)

// ValidationConfig drives the acceptance predicate. Centering and expression
// checks only run under StrictnessStrict.
type ValidationConfig struct {
	Strictness            Strictness   `yaml:"strictness"`
	MinCoverage           float64      `yaml:"min_coverage"`
	CenterTolerance       float64      `yaml:"center_tolerance"`
	DisallowedExpressions []Expression `yaml:"disallowed_expressions"`
	ExpressionCeiling     float64      `yaml:"expression_ceiling"`
}

type CaptureConfig struct {
	JPEGQuality   int `yaml:"jpeg_quality"`
	PreviewLength int `yaml:"preview_length"`
}

type SessionConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Verbose      bool          `yaml:"verbose"`
}

// ============================================================
// DEFAULTS
// ============================================================

func DefaultConfig() Config {
	return Config{
		Server:     DefaultServerConfig(),
		Camera:     DefaultCameraConfig(),
		Detector:   DefaultDetectorConfig(),
		Validation: StrictValidationConfig(),
		Capture:    DefaultCaptureConfig(),
		Session:    DefaultSessionConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		AllowOrigins: []string{"*"},
	}
}

func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Source:      CameraSourceDevice,
		DeviceID:    0,
		FacingMode:  FacingModeUser,
		IdealWidth:  640,
		IdealHeight: 480,
	}
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Backend:         DetectorBackendYuNet,
		ModelLocation:   "./models-data",
		FaceModel:       "face_detection_yunet_2023mar.onnx",
		CascadeModel:    "haarcascade_frontalface_default.xml",
		ExpressionModel: "emotion-ferplus-8.onnx",
		ScoreThreshold:  0.6,
		MinFaceSize:     80,
	}
}

// StrictValidationConfig requires coverage, centering and an acceptable
// dominant expression.
func StrictValidationConfig() ValidationConfig {
	return ValidationConfig{
		Strictness:      StrictnessStrict,
		MinCoverage:     0.10,
		CenterTolerance: 0.20,
		DisallowedExpressions: []Expression{
			ExpressionAngry,
			ExpressionDisgusted,
			ExpressionFearful,
		},
		ExpressionCeiling: 0.70,
	}
}

// LenientValidationConfig checks coverage only.
func LenientValidationConfig() ValidationConfig {
	return ValidationConfig{
		Strictness:  StrictnessLenient,
		MinCoverage: 0.08,
	}
}

// ValidationPreset returns the preset for a strictness name.
func ValidationPreset(s Strictness) (ValidationConfig, bool) {
	switch s {
	case StrictnessStrict:
		return StrictValidationConfig(), true
	case StrictnessLenient:
		return LenientValidationConfig(), true
	default:
		return ValidationConfig{}, false
	}
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		JPEGQuality:   90,
		PreviewLength: 50,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TickInterval: time.Second / 60,
	}
}
