// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Model describes one entry of the model registry: a named pre-trained
// classifier served by an external inference service.
type Model struct {
	Name          string   `yaml:"name"`
	Endpoint      string   `yaml:"endpoint"`
	Labels        []string `yaml:"labels"`
	ConfThreshold float64  `yaml:"conf_threshold"`
	Explanation   string   `yaml:"explanation"` // grad-cam, shap; empty disables heatmaps
}

type Config struct {
	App struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"app"`

	Auth struct {
		TokenExpiryMinutes int `yaml:"token_expiry_minutes"`
	} `yaml:"auth"`

	Storage struct {
		MaxUploadSizeMB int64  `yaml:"max_upload_size_mb"`
		UploadsPrefix   string `yaml:"uploads_prefix"`
		HeatmapsPrefix  string `yaml:"heatmaps_prefix"`
		ReportsPrefix   string `yaml:"reports_prefix"`
		LocalDir        string `yaml:"local_dir"`
	} `yaml:"storage"`

	Models []Model `yaml:"models"`
}

// Load reads the yaml config file and applies environment overrides. A
// missing file is not an error; defaults still apply so the server can boot
// from env alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only boot
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.App.SecretKey == "" {
		return nil, fmt.Errorf("no secret key configured (set app.secret_key or SECRET_KEY)")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "Medical AI Diagnostics API"
	}
	if c.App.Version == "" {
		c.App.Version = "1.0.0"
	}
	if c.Auth.TokenExpiryMinutes <= 0 {
		c.Auth.TokenExpiryMinutes = 60
	}
	if c.Storage.MaxUploadSizeMB <= 0 {
		c.Storage.MaxUploadSizeMB = 16
	}
	if c.Storage.UploadsPrefix == "" {
		c.Storage.UploadsPrefix = "uploads"
	}
	if c.Storage.HeatmapsPrefix == "" {
		c.Storage.HeatmapsPrefix = "heatmaps"
	}
	if c.Storage.ReportsPrefix == "" {
		c.Storage.ReportsPrefix = "reports"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.App.SecretKey = v
	}
	if v := os.Getenv("TOKEN_EXPIRY_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Auth.TokenExpiryMinutes = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Storage.MaxUploadSizeMB = n
		}
	}
	if v := os.Getenv("STORAGE_LOCAL_DIR"); v != "" {
		c.Storage.LocalDir = v
	}
	// MODEL_URL overrides every registry endpoint, the single-model dev setup.
	if v := os.Getenv("MODEL_URL"); v != "" {
		for i := range c.Models {
			c.Models[i].Endpoint = v
		}
	}
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxUploadSizeMB * 1024 * 1024
}

// FindModel looks a model up by name in the registry.
func (c *Config) FindModel(name string) (*Model, bool) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], true
		}
	}
	return nil, false
}
