package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cs-inspector/internal/ingest"
	"cs-inspector/internal/inspector"
	"cs-inspector/internal/llm"
	"cs-inspector/internal/notifier"
	"cs-inspector/internal/report"
	"cs-inspector/internal/scheduler"
)

const defaultConfigPath = "config.yaml"

// AppConfig 应用配置。
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Log       LogConfig            `yaml:"log"`
	LLM       llm.Config           `yaml:"llm"`
	Inspector inspector.Config     `yaml:"inspector"`
	Ingest    ingest.Config        `yaml:"ingest"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
	Report    report.Config        `yaml:"report"`
	Email     notifier.EmailConfig `yaml:"email"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load 读取 .env 与 YAML 配置，再用环境变量覆盖敏感项。
// 未显式指定 CONFIG_FILE 且默认文件不存在时使用默认配置。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, err
		}
		cfg = AppConfig{}
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadFile 仅解析 YAML 文件，不做默认值与环境变量处理。
func LoadFile(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容。
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults 填充缺省值。
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/inspector.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.LLM.Provider == "" {
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			c.LLM.Provider = llm.ProviderMock
		} else {
			c.LLM.Provider = llm.ProviderDashScope
		}
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "reports"
	}
	if c.Report.Period == "" {
		c.Report.Period = "最近7天"
	}
	if c.Ingest.Source == "" {
		c.Ingest.Source = "local"
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}
