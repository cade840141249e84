package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Upload  UploadConfig  `yaml:"upload"`
	Export  ExportConfig  `yaml:"export"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type SessionConfig struct {
	Store           string        `yaml:"store"` // memory, sqlite
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type UploadConfig struct {
	MaxFiles     int   `yaml:"max_files"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

type ExportConfig struct {
	DefaultFormat string `yaml:"default_format"`
}

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config.yaml"
		}
		cfg = loadOrDefault(configPath)
	})
	return cfg
}

// loadOrDefault 配置有误时退回默认配置继续启动。
// 只有通过校验的环境变量才会生效，否则完全使用默认值。
func loadOrDefault(path string) *Config {
	loaded, err := Load(path)
	if err == nil {
		return loaded
	}
	fmt.Fprintf(os.Stderr, "load config %s failed, using defaults: %v\n", path, err)

	fallback := Default()
	applyEnv(fallback)
	if err := fallback.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment overrides ignored: %v\n", err)
		return Default()
	}
	return fallback
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Session: SessionConfig{
			Store:           StoreMemory,
			TTL:             2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Upload: UploadConfig{
			MaxFiles:     10,
			MaxFileBytes: 20 << 20,
		},
		Export: ExportConfig{
			DefaultFormat: "md",
		},
	}
}

// Load 读取配置文件，文件不存在时使用默认值。环境变量优先级高于配置文件。
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	applyEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		config.Server.Mode = mode
	}

	// 会话存储环境变量
	if store := os.Getenv("SESSION_STORE"); store != "" {
		config.Session.Store = store
	}
	if ttl, err := time.ParseDuration(os.Getenv("SESSION_TTL")); err == nil {
		config.Session.TTL = ttl
	}
	if interval, err := time.ParseDuration(os.Getenv("SESSION_CLEANUP_INTERVAL")); err == nil {
		config.Session.CleanupInterval = interval
	}

	// 上传限制环境变量
	if maxFiles, err := strconv.Atoi(os.Getenv("UPLOAD_MAX_FILES")); err == nil {
		config.Upload.MaxFiles = maxFiles
	}
	if maxBytes, err := strconv.ParseInt(os.Getenv("UPLOAD_MAX_FILE_BYTES"), 10, 64); err == nil {
		config.Upload.MaxFileBytes = maxBytes
	}

	if format := os.Getenv("EXPORT_DEFAULT_FORMAT"); format != "" {
		config.Export.DefaultFormat = format
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Session.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("不支持的会话存储: %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl 必须大于 0")
	}
	switch c.Export.DefaultFormat {
	case "txt", "md", "html", "zip":
	default:
		return fmt.Errorf("不支持的导出格式: %q", c.Export.DefaultFormat)
	}
	if c.Upload.MaxFiles < 0 || c.Upload.MaxFileBytes < 0 {
		return fmt.Errorf("上传限制不能为负数")
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// UpdateConfig 替换全局配置，之后 GetConfig 不再读取配置文件
func UpdateConfig(newCfg *Config) {
	once.Do(func() {})
	cfg = newCfg
}
