package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "docscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOCSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a caller-owned viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first docscan config file found on the search paths,
// applies environment overrides and validates the result. A missing file is
// not an error.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// behaves like Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps DOCSCAN_FALLBACK_API_KEY to fallback.api_key.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that environment overrides apply to it.
func (l *Loader) setDefaults() {
	for key, value := range defaultSettings() {
		l.v.SetDefault(key, value)
	}
}

func defaultSettings() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"log_level": d.LogLevel,
		"verbose":   d.Verbose,

		"preprocess.enabled":    d.Preprocess.Enabled,
		"preprocess.scale":      d.Preprocess.Scale,
		"preprocess.contrast":   d.Preprocess.Contrast,
		"preprocess.brightness": d.Preprocess.Brightness,
		"preprocess.sharpen":    d.Preprocess.Sharpen,
		"preprocess.grayscale":  d.Preprocess.Grayscale,
		"preprocess.denoise":    d.Preprocess.Denoise,
		"preprocess.resample":   d.Preprocess.Resample,
		"preprocess.max_pixels": d.Preprocess.MaxPixels,

		"recognition.languages":       d.Recognition.Languages,
		"recognition.tessdata_prefix": d.Recognition.TessdataPrefix,
		"recognition.page_seg_mode":   d.Recognition.PageSegMode,

		"fallback.enabled":            d.Fallback.Enabled,
		"fallback.threshold":          d.Fallback.Threshold,
		"fallback.timeout_sec":        d.Fallback.TimeoutSec,
		"fallback.api_key":            d.Fallback.APIKey,
		"fallback.endpoint":           d.Fallback.Endpoint,
		"fallback.send_enhanced":      d.Fallback.SendEnhanced,
		"fallback.default_confidence": d.Fallback.DefaultConfidence,

		"output.format": d.Output.Format,
		"output.file":   d.Output.File,

		"pdf.min_image_size": d.PDF.MinImageSize,
		"pdf.password":       d.PDF.Password,

		"server.host":                            d.Server.Host,
		"server.port":                            d.Server.Port,
		"server.cors_origin":                     d.Server.CORSOrigin,
		"server.max_upload_mb":                   d.Server.MaxUploadMB,
		"server.timeout_sec":                     d.Server.TimeoutSec,
		"server.shutdown_timeout":                d.Server.ShutdownTimeout,
		"server.pipelines":                       d.Server.Pipelines,
		"server.rate_limit.enabled":              d.Server.RateLimit.Enabled,
		"server.rate_limit.requests_per_minute":  d.Server.RateLimit.RequestsPerMinute,
		"server.rate_limit.requests_per_hour":    d.Server.RateLimit.RequestsPerHour,
		"server.rate_limit.max_requests_per_day": d.Server.RateLimit.MaxRequestsPerDay,
		"server.rate_limit.max_data_per_day_mb":  d.Server.RateLimit.MaxDataPerDayMB,

		"batch.workers":           d.Batch.Workers,
		"batch.continue_on_error": d.Batch.ContinueOnError,
		"batch.recursive":         d.Batch.Recursive,
		"batch.xlsx":              d.Batch.XLSX,
	}
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename (docscan.yaml
// when empty). Existing files are not overwritten.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	return loader.v.SafeWriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, filepath.Join("/etc", ConfigFileName))
}

// PrintConfigInfo writes the config file in use, the search paths and the
// environment prefix to w.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	used := l.GetConfigFileUsed()
	if used == "" {
		used = "(none, using defaults)"
	}
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", used)
	_, _ = fmt.Fprintln(w, "Configuration search paths:")
	for _, p := range GetConfigSearchPaths() {
		_, _ = fmt.Fprintf(w, "  %s\n", p)
	}
	_, _ = fmt.Fprintf(w, "Environment prefix: %s_\n", EnvPrefix)
}
