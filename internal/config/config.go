// Package config loads platform configuration: built-in defaults, then an
// optional YAML file, then TRANSCENDIA_* environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/geometry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRANSCENDIA_"

// PathEnv names the variable holding the config file path.
const PathEnv = EnvPrefix + "CONFIG"

const (
	MinIntervalSeconds = 1
	MaxIntervalSeconds = 255
)

// SupportedLanguages are the translation targets offered to the user.
var SupportedLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "pt-BR", "nl", "sv", "no", "da", "fi", "pl", "cs", "hu", "ro", "ru",
}

var languageMatcher = language.NewMatcher(parseTags(SupportedLanguages))

type Config struct {
	Platform  Platform  `yaml:"platform"`
	Runtime   Runtime   `yaml:"runtime"`
	OCR       OCR       `yaml:"ocr"`
	Translate Translate `yaml:"translate"`
	Models    Models    `yaml:"models"`
}

type Platform struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
}

type Runtime struct {
	// Region is nil until the user has selected one.
	Region            *geometry.Region `yaml:"region" json:"region,omitempty"`
	Monitor           uint32           `yaml:"monitor" json:"monitor"`
	IntervalSeconds   int              `yaml:"interval_seconds" json:"interval_seconds"`
	Language          string           `yaml:"language" json:"language"`
	BlurBackground    bool             `yaml:"blur_background" json:"blur_background"`
	SkipSimilarFrames bool             `yaml:"skip_similar_frames" json:"skip_similar_frames"`
}

type OCR struct {
	Backend       string   `yaml:"backend"`
	InferenceAddr string   `yaml:"inference_addr"`
	Languages     []string `yaml:"languages"`
}

type Translate struct {
	Endpoint       string        `yaml:"endpoint"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
}

type Models struct {
	// Dir defaults to the per-user data directory when empty.
	Dir            string        `yaml:"dir"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Platform: Platform{HTTPAddr: "127.0.0.1:8000", LogLevel: "info"},
		Runtime: Runtime{
			IntervalSeconds: 1,
			Language:        "en",
			BlurBackground:  true,
		},
		OCR: OCR{Backend: "grpc", InferenceAddr: "localhost:50051", Languages: []string{"en"}},
		Translate: Translate{
			Endpoint:       "https://translate.googleapis.com/translate_a/single",
			ConnectTimeout: 10 * time.Second,
			Timeout:        20 * time.Second,
		},
		Models: Models{ConnectTimeout: 10 * time.Second, Timeout: 20 * time.Second},
	}
}

// Load builds the configuration. path may be empty, in which case
// TRANSCENDIA_CONFIG is consulted; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("config file not found, using defaults", "path", path)
		return nil
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "read %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "parse %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Platform.HTTPAddr = getEnv("HTTP_ADDR", c.Platform.HTTPAddr)
	c.Platform.LogLevel = getEnv("LOG_LEVEL", c.Platform.LogLevel)

	c.Runtime.Monitor = uint32(getEnvInt("MONITOR", int(c.Runtime.Monitor)))
	c.Runtime.IntervalSeconds = getEnvInt("INTERVAL_SECONDS", c.Runtime.IntervalSeconds)
	c.Runtime.Language = getEnv("LANGUAGE", c.Runtime.Language)
	c.Runtime.BlurBackground = getEnvBool("BLUR_BACKGROUND", c.Runtime.BlurBackground)
	c.Runtime.SkipSimilarFrames = getEnvBool("SKIP_SIMILAR_FRAMES", c.Runtime.SkipSimilarFrames)
	if v := os.Getenv(EnvPrefix + "REGION"); v != "" {
		if r, err := ParseRegion(v); err == nil {
			c.Runtime.Region = &r
		} else {
			slog.Warn("ignoring invalid region override", "value", v, "error", err)
		}
	}

	c.OCR.Backend = getEnv("OCR_BACKEND", c.OCR.Backend)
	c.OCR.InferenceAddr = getEnv("INFERENCE_ADDR", c.OCR.InferenceAddr)
	c.OCR.Languages = getEnvList("OCR_LANGUAGES", c.OCR.Languages)

	c.Translate.Endpoint = getEnv("TRANSLATE_ENDPOINT", c.Translate.Endpoint)
	c.Translate.Timeout = getEnvDuration("TRANSLATE_TIMEOUT", c.Translate.Timeout)

	c.Models.Dir = getEnv("MODEL_DIR", c.Models.Dir)
	c.Models.Timeout = getEnvDuration("MODEL_TIMEOUT", c.Models.Timeout)
}

// Validate rejects configurations the runtime cannot use.
func (c *Config) Validate() error {
	if _, err := slogLevel(c.Platform.LogLevel); err != nil {
		return err
	}
	if err := c.Runtime.Validate(); err != nil {
		return err
	}

	switch c.OCR.Backend {
	case "grpc":
		if c.OCR.InferenceAddr == "" {
			return apperrors.New(apperrors.ConfigInvalid, "ocr.inference_addr is required for the grpc backend")
		}
	case "tesseract":
	default:
		return apperrors.Newf(apperrors.ConfigInvalid, "unknown ocr backend %q", c.OCR.Backend)
	}

	if !strings.HasPrefix(c.Translate.Endpoint, "https://") {
		return apperrors.Newf(apperrors.ConfigInvalid, "translate.endpoint %q must use https", c.Translate.Endpoint)
	}
	for name, d := range map[string]time.Duration{
		"translate.connect_timeout": c.Translate.ConnectTimeout,
		"translate.timeout":         c.Translate.Timeout,
		"models.connect_timeout":    c.Models.ConnectTimeout,
		"models.timeout":            c.Models.Timeout,
	} {
		if d <= 0 {
			return apperrors.Newf(apperrors.ConfigInvalid, "%s must be positive", name)
		}
	}
	return nil
}

// Validate checks the settings the UI may change at run time.
func (r *Runtime) Validate() error {
	if r.Region != nil {
		if err := r.Region.Validate(); err != nil {
			return err
		}
	}
	if err := ValidateInterval(r.IntervalSeconds); err != nil {
		return err
	}
	lang, err := NormalizeLanguage(r.Language)
	if err != nil {
		return err
	}
	r.Language = lang
	return nil
}

// Interval is the runtime interval as a duration.
func (r Runtime) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// SlogLevel returns the configured log level.
func (p Platform) SlogLevel() slog.Level {
	l, _ := slogLevel(p.LogLevel)
	return l
}

func slogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, apperrors.Wrapf(err, apperrors.ConfigInvalid, "log_level %q", s)
	}
	return l, nil
}

// ValidateInterval checks a user supplied interval in seconds.
func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds || seconds > MaxIntervalSeconds {
		return apperrors.Newf(apperrors.ConfigInvalid, "interval %ds outside %d..%d", seconds, MinIntervalSeconds, MaxIntervalSeconds)
	}
	return nil
}

// NormalizeLanguage maps a BCP 47 tag onto the closest supported target language.
func NormalizeLanguage(s string) (string, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ConfigInvalid, "language %q", s)
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return "", apperrors.Newf(apperrors.ConfigInvalid, "language %q is not supported", s)
	}
	return SupportedLanguages[idx], nil
}

// ParseRegion parses "x,y,w,h".
func ParseRegion(s string) (geometry.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Region{}, apperrors.Newf(apperrors.ConfigInvalid, "region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geometry.Region{}, apperrors.Wrapf(err, apperrors.ConfigInvalid, "region %q", s)
		}
		v[i] = n
	}
	r := geometry.Region{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return r, r.Validate()
}

// String renders the effective configuration for logging.
func (c *Config) String() string {
	region := "unset"
	if c.Runtime.Region != nil {
		region = c.Runtime.Region.String()
	}
	return fmt.Sprintf("http=%s ocr=%s region=%s monitor=%d interval=%ds language=%s",
		c.Platform.HTTPAddr, c.OCR.Backend, region, c.Runtime.Monitor, c.Runtime.IntervalSeconds, c.Runtime.Language)
}

func parseTags(ss []string) []language.Tag {
	tags := make([]language.Tag, len(ss))
	for i, s := range ss {
		tags[i] = language.MustParse(s)
	}
	return tags
}

func getEnv(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
