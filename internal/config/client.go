package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ClientConfig configures the focus timer CLI.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Token     string `mapstructure:"token"`
	StorePath string `mapstructure:"store_path"`
	Timezone  string `mapstructure:"timezone"`
	Debug     bool   `mapstructure:"debug"`
	LogFile   string `mapstructure:"log_file"`
}

func defaultClientDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "studytrack")
	}
	return ".studytrack"
}

// LoadClient reads focus.yaml from path or the user config directory,
// with STUDYTRACK_* environment overrides.
func LoadClient(path string) (*ClientConfig, error) {
	dir := defaultClientDir()

	v := viper.New()
	v.SetConfigName("focus")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(dir)

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("store_path", filepath.Join(dir, "focus.db"))
	v.SetDefault("timezone", "UTC")
	v.SetDefault("log_file", filepath.Join(dir, "focus.log"))

	v.SetEnvPrefix("STUDYTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("token", "STUDYTRACK_TOKEN")
	v.BindEnv("server_url", "STUDYTRACK_SERVER_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read client config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode client config: %w", err)
	}
	return &cfg, nil
}
