// Package config 从环境变量和可选的 YAML 文件加载服务配置。
// 环境变量优先于文件。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName       = "订阅优选&聚合"
	DefaultUpdateInterval = 6
	DefaultSubAPI         = "SUBAPI.fxxk.dedyn.io"
	DefaultSubConfig      = "https://raw.githubusercontent.com/cmliu/ACL4SSR/main/Clash/config/ACL4SSR_Online_MultiCountry.ini"
)

type Config struct {
	// 访问控制
	Token      string `yaml:"token"`
	GuestToken string `yaml:"guest_token"`

	// Telegram 通知
	TGToken string `yaml:"tg_token"`
	TGID    string `yaml:"tg_id"`
	TG      int    `yaml:"tg"` // 1 时推送异常访问

	// 订阅
	FileName       string `yaml:"sub_name"`
	UpdateInterval int    `yaml:"sub_update_time"` // 小时
	Link           string `yaml:"link"`
	LinkSub        string `yaml:"link_sub"`
	SubAPI         string `yaml:"sub_api"`
	SubConfig      string `yaml:"sub_config"`
	BestIPURL      string `yaml:"best_ip_url"`
	CustomHosts    string `yaml:"custom_hosts"`
	Warp           string `yaml:"warp"`

	// 未授权访问的伪装
	URL302 string `yaml:"url302"`
	URL    string `yaml:"url"`

	// 服务
	Port           string        `yaml:"port"`
	DataPath       string        `yaml:"data_path"`
	AllowedOrigins string        `yaml:"allowed_origins"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ConvertTimeout time.Duration `yaml:"convert_timeout"`
	LogLevel       string        `yaml:"log_level"`
	LogDir         string        `yaml:"log_dir"`
	LogToFile      bool          `yaml:"log_to_file"`
}

// Default 返回内置默认值
func Default() Config {
	return Config{
		FileName:       DefaultFileName,
		UpdateInterval: DefaultUpdateInterval,
		SubAPI:         DefaultSubAPI,
		SubConfig:      DefaultSubConfig,
		Port:           "8080",
		DataPath:       "data/subaggr.db",
		FetchTimeout:   15 * time.Second,
		ConvertTimeout: 30 * time.Second,
		LogLevel:       "info",
		LogDir:         "data/logs",
	}
}

// Load 从进程环境加载配置
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom 使用给定的环境变量查找函数加载配置
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	env := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
	str := func(dst *string, keys ...string) {
		if v, ok := env(keys...); ok {
			*dst = v
		}
	}

	str(&cfg.Token, "TOKEN")
	str(&cfg.GuestToken, "GUESTTOKEN", "GUEST")
	str(&cfg.TGToken, "TGTOKEN")
	str(&cfg.TGID, "TGID")
	str(&cfg.FileName, "SUBNAME")
	str(&cfg.Link, "LINK")
	str(&cfg.LinkSub, "LINKSUB")
	str(&cfg.SubAPI, "SUBAPI")
	str(&cfg.SubConfig, "SUBCONFIG")
	str(&cfg.BestIPURL, "BESTIPURL", "BESTIP")
	str(&cfg.CustomHosts, "CUSTOMHOSTS", "CUSTOMHOST")
	str(&cfg.Warp, "WARP")
	str(&cfg.URL302, "URL302")
	str(&cfg.URL, "URL")
	str(&cfg.Port, "PORT")
	str(&cfg.DataPath, "DATA_PATH")
	str(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.LogDir, "LOG_DIR")

	if v, ok := env("TG"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("invalid TG %q: %w", v, err)
		}
		cfg.TG = n
	}
	if v, ok := env("SUBUPTIME"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("invalid SUBUPTIME %q: %w", v, err)
		}
		cfg.UpdateInterval = n
	}
	if v, ok := env("LOG_TO_FILE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_TO_FILE %q: %w", v, err)
		}
		cfg.LogToFile = b
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"FETCH_TIMEOUT", &cfg.FetchTimeout},
		{"CONVERT_TIMEOUT", &cfg.ConvertTimeout},
	} {
		if v, ok := env(d.key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s %q: %w", d.key, v, err)
			}
			*d.dst = parsed
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.FileName == "" {
		c.FileName = def.FileName
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = def.UpdateInterval
	}
	if c.SubAPI == "" {
		c.SubAPI = def.SubAPI
	}
	if c.SubConfig == "" {
		c.SubConfig = def.SubConfig
	}
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = def.ConvertTimeout
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
}

// Addr 返回 HTTP 监听地址
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// AlertsEnabled 是否推送异常访问告警
func (c Config) AlertsEnabled() bool {
	return c.TG == 1
}
