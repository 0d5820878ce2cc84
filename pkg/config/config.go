package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Listen            string
	Mode              string        // gin 模式: release, debug, test
	ReadHeaderTimeout time.Duration // 读取请求头超时
	RequestTimeout    time.Duration // 单个请求（含上游行情调用）的超时
	ShutdownTimeout   time.Duration // 优雅关闭等待时间
	MaxOptions        int           // 单次计算最多期权数
	MaxIncrements     int           // 单次计算最多涨跌幅数
	IndexSymbols      []string      // /api/market/indices 返回的指数（ETF）代码
	DebugListen       string        // expvar/pprof 调试端口（为空则不启动）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string // 日志文件路径（可选）
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	ByDay      bool
	JSON       bool
}

// MarketDataConfig 行情数据源配置
type MarketDataConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
	RateLimit  int // 每秒请求数
	Burst      int // 令牌桶容量
}

// CacheConfig 行情缓存配置
type CacheConfig struct {
	Backend  string // memory 或 redis
	RedisURL string
	QuoteTTL time.Duration
	ChainTTL time.Duration
}

// Config 应用配置
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	MarketData MarketDataConfig
	Cache      CacheConfig
}

// ConfigFile 配置文件结构（用于 YAML 解析），时长使用 "5s" 这类字符串
type ConfigFile struct {
	Server struct {
		Listen            string   `yaml:"listen"`
		Mode              string   `yaml:"mode"`
		ReadHeaderTimeout string   `yaml:"read_header_timeout"`
		RequestTimeout    string   `yaml:"request_timeout"`
		ShutdownTimeout   string   `yaml:"shutdown_timeout"`
		MaxOptions        int      `yaml:"max_options"`
		MaxIncrements     int      `yaml:"max_increments"`
		IndexSymbols      []string `yaml:"index_symbols"`
		DebugListen       string   `yaml:"debug_listen"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   *bool  `yaml:"compress"`
		ByDay      *bool  `yaml:"by_day"`
		JSON       *bool  `yaml:"json"`
	} `yaml:"log"`
	MarketData struct {
		BaseURL    string `yaml:"base_url"`
		Token      string `yaml:"token"`
		Timeout    string `yaml:"timeout"`
		RetryCount *int   `yaml:"retry_count"`
		RateLimit  int    `yaml:"rate_limit"`
		Burst      int    `yaml:"burst"`
	} `yaml:"market_data"`
	Cache struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
		QuoteTTL string `yaml:"quote_ttl"`
		ChainTTL string `yaml:"chain_ttl"`
	} `yaml:"cache"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            ":8080",
			Mode:              "release",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    15 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			MaxOptions:        500,
			MaxIncrements:     1000,
			IndexSymbols:      []string{"SPY", "QQQ", "DIA", "IWM"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		MarketData: MarketDataConfig{
			BaseURL:    "https://api.tradier.com",
			Timeout:    10 * time.Second,
			RetryCount: 2,
			RateLimit:  2,
			Burst:      10,
		},
		Cache: CacheConfig{
			Backend:  "memory",
			QuoteTTL: 15 * time.Second,
			ChainTTL: 60 * time.Second,
		},
	}
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）；filePath 为空时跳过配置文件
func Load(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		if err := cfg.applyFile(cf); err != nil {
			return nil, fmt.Errorf("配置文件 %s: %w", filePath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var cf ConfigFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}
	return &cf, nil
}

func (c *Config) applyFile(cf *ConfigFile) error {
	var err error
	setString(&c.Server.Listen, cf.Server.Listen)
	setString(&c.Server.Mode, cf.Server.Mode)
	if err = setDuration(&c.Server.ReadHeaderTimeout, "server.read_header_timeout", cf.Server.ReadHeaderTimeout); err != nil {
		return err
	}
	if err = setDuration(&c.Server.RequestTimeout, "server.request_timeout", cf.Server.RequestTimeout); err != nil {
		return err
	}
	if err = setDuration(&c.Server.ShutdownTimeout, "server.shutdown_timeout", cf.Server.ShutdownTimeout); err != nil {
		return err
	}
	setInt(&c.Server.MaxOptions, cf.Server.MaxOptions)
	setInt(&c.Server.MaxIncrements, cf.Server.MaxIncrements)
	setString(&c.Server.DebugListen, cf.Server.DebugListen)
	if len(cf.Server.IndexSymbols) > 0 {
		c.Server.IndexSymbols = cf.Server.IndexSymbols
	}

	setString(&c.Log.Level, cf.Log.Level)
	setString(&c.Log.File, cf.Log.File)
	setInt(&c.Log.MaxSize, cf.Log.MaxSize)
	setInt(&c.Log.MaxBackups, cf.Log.MaxBackups)
	setInt(&c.Log.MaxAge, cf.Log.MaxAge)
	setBool(&c.Log.Compress, cf.Log.Compress)
	setBool(&c.Log.ByDay, cf.Log.ByDay)
	setBool(&c.Log.JSON, cf.Log.JSON)

	setString(&c.MarketData.BaseURL, cf.MarketData.BaseURL)
	setString(&c.MarketData.Token, cf.MarketData.Token)
	if err = setDuration(&c.MarketData.Timeout, "market_data.timeout", cf.MarketData.Timeout); err != nil {
		return err
	}
	if cf.MarketData.RetryCount != nil {
		c.MarketData.RetryCount = *cf.MarketData.RetryCount
	}
	setInt(&c.MarketData.RateLimit, cf.MarketData.RateLimit)
	setInt(&c.MarketData.Burst, cf.MarketData.Burst)

	setString(&c.Cache.Backend, cf.Cache.Backend)
	setString(&c.Cache.RedisURL, cf.Cache.RedisURL)
	if err = setDuration(&c.Cache.QuoteTTL, "cache.quote_ttl", cf.Cache.QuoteTTL); err != nil {
		return err
	}
	return setDuration(&c.Cache.ChainTTL, "cache.chain_ttl", cf.Cache.ChainTTL)
}

func (c *Config) applyEnv() error {
	c.Server.Listen = getEnv("OPTCALC_LISTEN", c.Server.Listen)
	c.Server.Mode = getEnv("OPTCALC_GIN_MODE", c.Server.Mode)
	c.Server.DebugListen = getEnv("OPTCALC_DEBUG_LISTEN", c.Server.DebugListen)
	if v := getEnv("OPTCALC_INDEX_SYMBOLS", ""); v != "" {
		c.Server.IndexSymbols = parseSymbolList(v)
	}

	c.Log.Level = getEnv("OPTCALC_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("OPTCALC_LOG_FILE", c.Log.File)
	c.Log.ByDay = parseBoolEnv("OPTCALC_LOG_BY_DAY", c.Log.ByDay)
	c.Log.JSON = parseBoolEnv("OPTCALC_LOG_JSON", c.Log.JSON)

	c.MarketData.BaseURL = getEnv("OPTCALC_MARKET_DATA_URL", c.MarketData.BaseURL)
	// TRADIER_TOKEN 作为兼容别名
	c.MarketData.Token = getEnv("OPTCALC_MARKET_DATA_TOKEN", getEnv("TRADIER_TOKEN", c.MarketData.Token))
	c.MarketData.RateLimit = parseIntEnv("OPTCALC_RATE_LIMIT", c.MarketData.RateLimit)

	c.Cache.Backend = getEnv("OPTCALC_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisURL = getEnv("OPTCALC_REDIS_URL", c.Cache.RedisURL)

	var err error
	if c.Server.RequestTimeout, err = parseDurationEnv("OPTCALC_REQUEST_TIMEOUT", c.Server.RequestTimeout); err != nil {
		return err
	}
	if c.Cache.QuoteTTL, err = parseDurationEnv("OPTCALC_QUOTE_TTL", c.Cache.QuoteTTL); err != nil {
		return err
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("server.mode must be release, debug or test, got %q", c.Server.Mode)
	}
	if c.Server.MaxOptions <= 0 || c.Server.MaxIncrements <= 0 {
		return fmt.Errorf("server.max_options and server.max_increments must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}

	u, err := url.Parse(c.MarketData.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("market_data.base_url is not a valid URL: %q", c.MarketData.BaseURL)
	}
	if c.MarketData.RateLimit <= 0 {
		return fmt.Errorf("market_data.rate_limit must be > 0")
	}
	if c.MarketData.Burst < c.MarketData.RateLimit {
		c.MarketData.Burst = c.MarketData.RateLimit
	}
	if c.MarketData.RetryCount < 0 {
		return fmt.Errorf("market_data.retry_count must be >= 0")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache.backend=redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.QuoteTTL <= 0 || c.Cache.ChainTTL <= 0 {
		return fmt.Errorf("cache ttl must be > 0")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseSymbolList(str string) []string {
	var out []string
	for _, s := range strings.Split(str, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func parseBoolEnv(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
