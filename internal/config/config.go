package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/internal/relay"
	"UnifiedMCP-Client/pkg/logger"
)

// 环境变量名称，优先级高于配置文件。
const (
	EnvURL      = "UNIFIEDMCP_URL"
	EnvAPIKey   = "UNIFIEDMCP_API_KEY"
	EnvRealtime = "UNIFIEDMCP_REALTIME"
)

// Config 描述命令行客户端启动时需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     logger.Config `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Relay   relay.Config  `yaml:"relay"`
}

// ServerConfig 描述要连接的 Unified MCP 服务端。
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// APIKeyEnv 指定从哪个环境变量读取 API Key，避免把密钥写进文件。
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Realtime       *bool  `yaml:"realtime"`
	RealtimeURL    string `yaml:"realtime_url"`
}

// MetricsConfig 控制 Prometheus 指标端点。Address 为空时不启动。
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Timeout 返回请求超时时间。
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RealtimeEnabled 返回是否启用实时通道，未配置时默认启用。
func (s ServerConfig) RealtimeEnabled() bool {
	return s.Realtime == nil || *s.Realtime
}

// Default 返回带默认值的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 解析 YAML 配置文件并应用环境变量覆盖。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvURL); ok && strings.TrimSpace(v) != "" {
		c.Server.BaseURL = strings.TrimSpace(v)
	}
	if c.Server.APIKey == "" && c.Server.APIKeyEnv != "" {
		if v, ok := lookup(c.Server.APIKeyEnv); ok {
			c.Server.APIKey = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(EnvAPIKey); ok && strings.TrimSpace(v) != "" {
		c.Server.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvRealtime); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, EnvRealtime+" 取值无效")
		}
		c.Server.Realtime = &enabled
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:3000"
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate 检查配置的基本合法性。
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return xerrors.New(xerrors.CodeInvalidArgument, "server.base_url 必须以 http:// 或 https:// 开头")
	}
	for _, driver := range c.Relay.Drivers {
		switch strings.ToLower(strings.TrimSpace(driver)) {
		case relay.DriverMemory, relay.DriverRedis, relay.DriverRabbitMQ, relay.DriverMySQL:
		default:
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("relay.drivers 包含未知驱动: %q", driver))
		}
	}
	return nil
}
