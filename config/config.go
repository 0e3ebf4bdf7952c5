package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	ServerURL          string        `mapstructure:"server_url"`
	UploadPath         string        `mapstructure:"upload_path"`
	Secure             bool          `mapstructure:"secure"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxFrameSize       int64         `mapstructure:"max_frame_size"`
	StoragePath        string        `mapstructure:"storage_path"`
	MetadataPath       string        `mapstructure:"metadata_path"`
	CompressionEnabled bool          `mapstructure:"compression_enabled"`
	Debug              bool          `mapstructure:"debug"`
}

var Config *AppConfig

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("upload_path", "/api/upload/ws")
	v.SetDefault("secure", false)
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("handshake_timeout", 10*time.Second)
	v.SetDefault("write_timeout", 10*time.Second)
	v.SetDefault("max_frame_size", 16<<20)
	v.SetDefault("storage_path", "./data/staged")
	v.SetDefault("metadata_path", "./data/meta")
	v.SetDefault("compression_enabled", true)
	v.SetDefault("debug", false)
}

// LoadConfig reads config.yaml from path, overlays environment variables and
// stores the result in Config. A missing config file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var appConfig AppConfig
	if err := v.Unmarshal(&appConfig); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(appConfig.ServerURL), "https://") {
		appConfig.Secure = true
	}

	Config = &appConfig
	return &appConfig, nil
}

func (c *AppConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if !strings.HasPrefix(c.UploadPath, "/") {
		return fmt.Errorf("upload_path must start with '/': %q", c.UploadPath)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max_frame_size must be positive")
	}
	return nil
}
