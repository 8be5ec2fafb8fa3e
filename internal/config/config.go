package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5006
	DefaultManifestPath   = "models/manifest.yaml"
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxPixels      = 50_000_000
	DefaultServiceURL     = "http://127.0.0.1:5006"
)

type Config struct {
	Server ServerConfig
	Model  ModelConfig
	Client ClientConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	MaxPixels      int // decoded width*height limit, checked before decoding
	RequestTimeout time.Duration
	AllowedOrigins []string // CORS whitelist, empty allows any origin
}

// Addr returns the host:port pair the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ModelConfig struct {
	ManifestPath   string
	SharedLibrary  string // path to libonnxruntime, empty uses the library's default lookup
	Engines        int    // independent inference engines, 1 serializes all requests
	IntraOpThreads int    // 0 keeps the ONNX Runtime default
}

type ClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is like envInt but accepts zero.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration parses values such as "30s" or "2m".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           envString("FACE_HOST", DefaultHost),
			Port:           envInt("FACE_PORT", DefaultPort),
			MaxUploadBytes: int64(envInt("FACE_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
			MaxPixels:      envInt("FACE_MAX_PIXELS", DefaultMaxPixels),
			RequestTimeout: envDuration("FACE_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Model: ModelConfig{
			ManifestPath:   envString("FACE_MANIFEST", DefaultManifestPath),
			SharedLibrary:  os.Getenv("ONNXRUNTIME_LIB"),
			Engines:        envInt("FACE_ENGINES", 1),
			IntraOpThreads: envNonNegativeInt("FACE_INTRA_OP_THREADS", 0),
		},
		Client: ClientConfig{
			ServiceURL: envString("FACE_SERVICE_URL", DefaultServiceURL),
			Timeout:    envDuration("FACE_CLIENT_TIMEOUT", 2*time.Minute),
		},
	}
}

// Manifest describes the ONNX models that make up the face analyser.
type Manifest struct {
	Name       string         `yaml:"name"`
	Detector   DetectorSpec   `yaml:"detector"`
	Recognizer RecognizerSpec `yaml:"recognizer"`
}

type DetectorSpec struct {
	Path         string  `yaml:"path"`
	InputSize    int     `yaml:"input_size"`
	ScoreThresh  float32 `yaml:"score_threshold"`
	NMSThresh    float32 `yaml:"nms_threshold"`
	AnchorsPerPt int     `yaml:"anchors_per_point"`
	Strides      []int   `yaml:"strides"`
}

type RecognizerSpec struct {
	Path         string `yaml:"path"`
	InputSize    int    `yaml:"input_size"`
	EmbeddingDim int    `yaml:"embedding_dim"`
}

// LoadManifest reads the model manifest and fills in the defaults of the
// InsightFace buffalo_l pack. Relative model paths are resolved against the
// directory holding the manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

// ParseManifest parses manifest YAML; baseDir anchors relative model paths.
func ParseManifest(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(m.Detector.Path) {
		m.Detector.Path = filepath.Join(baseDir, m.Detector.Path)
	}
	if !filepath.IsAbs(m.Recognizer.Path) {
		m.Recognizer.Path = filepath.Join(baseDir, m.Recognizer.Path)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Detector.InputSize == 0 {
		m.Detector.InputSize = 640
	}
	if m.Detector.ScoreThresh == 0 {
		m.Detector.ScoreThresh = 0.5
	}
	if m.Detector.NMSThresh == 0 {
		m.Detector.NMSThresh = 0.4
	}
	if m.Detector.AnchorsPerPt == 0 {
		m.Detector.AnchorsPerPt = 2
	}
	if len(m.Detector.Strides) == 0 {
		m.Detector.Strides = []int{8, 16, 32}
	}
	if m.Recognizer.InputSize == 0 {
		m.Recognizer.InputSize = 112
	}
	if m.Recognizer.EmbeddingDim == 0 {
		m.Recognizer.EmbeddingDim = 512
	}
}

func (m *Manifest) validate() error {
	if m.Detector.Path == "" {
		return fmt.Errorf("manifest: detector.path is required")
	}
	if m.Recognizer.Path == "" {
		return fmt.Errorf("manifest: recognizer.path is required")
	}
	for _, s := range m.Detector.Strides {
		if s <= 0 || m.Detector.InputSize%s != 0 {
			return fmt.Errorf("manifest: stride %d does not divide detector input size %d", s, m.Detector.InputSize)
		}
	}
	return nil
}
