package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Signing      SigningConfig      `mapstructure:"signing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	ReferralHook ReferralHookConfig `mapstructure:"referral_hook"`
	Business     BusinessConfig     `mapstructure:"business"`
}

type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	Mode               string   `mapstructure:"mode"`
	TrustedProxies     []string `mapstructure:"trusted_proxies"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig 数据库配置，driver 支持 postgres / mysql / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ReferralCredited string `mapstructure:"referral_credited"`
	CreditRecorded   string `mapstructure:"credit_recorded"`
}

// AuthConfig API Key 配置，明文 key 只在启动时用于生成哈希，不会落库
type AuthConfig struct {
	WriterKey  string        `mapstructure:"writer_key"`
	AdminKey   string        `mapstructure:"admin_key"`
	SAKey      string        `mapstructure:"sa_key"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	SeedLock   time.Duration `mapstructure:"seed_lock"`
}

type SigningConfig struct {
	Secret string `mapstructure:"secret"`
}

// RateLimitPolicy 单个限流桶的配置
type RateLimitPolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled         bool            `mapstructure:"enabled"`
	Read            RateLimitPolicy `mapstructure:"read"`
	WriteReferrals  RateLimitPolicy `mapstructure:"write_referrals"`
	WriteFranchisee RateLimitPolicy `mapstructure:"write_franchisee"`
	WriteOps        RateLimitPolicy `mapstructure:"write_ops"`
	SweepInterval   time.Duration   `mapstructure:"sweep_interval"`
	SweepGrace      time.Duration   `mapstructure:"sweep_grace"`
}

// ReferralHookConfig 发票派生推荐记录的配置
//
// mode=local 时直接调用本进程的写入服务，mode=remote 时通过 HTTP 调用另一个推荐服务
type ReferralHookConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Debug     bool   `mapstructure:"debug"`
	Mode      string `mapstructure:"mode"`
	BaseURL   string `mapstructure:"base_url"`
	WriterKey string `mapstructure:"writer_key"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Timeout 派生请求的超时时间
func (c ReferralHookConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// legacyEnv 兼容旧部署使用的环境变量名
var legacyEnv = map[string]string{
	"server.port":                 "PORT",
	"server.cors_allowed_origins": "CORS_ALLOWED_ORIGINS",
	"database.dsn":                "DATABASE_URL",
	"auth.writer_key":             "WRITER_API_KEY",
	"auth.admin_key":              "ADMIN_API_KEY",
	"auth.sa_key":                 "SA_API_KEY",
	"signing.secret":              "REF_SIGNING_KEY",
	"referral_hook.enabled":       "REF_ENABLE",
	"referral_hook.debug":         "REF_DEBUG",
	"referral_hook.base_url":      "REF_API_BASE_URL",
	"referral_hook.writer_key":    "REF_API_WRITER_KEY",
	"referral_hook.timeout_ms":    "REF_TIMEOUT_MS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.cors_allowed_origins", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.referral_credited", "referral.credited")
	v.SetDefault("kafka.topic.credit_recorded", "credit.recorded")

	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.cache_ttl", 30*time.Second)
	v.SetDefault("auth.seed_lock", 30*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.read.limit", 60)
	v.SetDefault("rate_limit.read.window", time.Minute)
	v.SetDefault("rate_limit.write_referrals.limit", 10)
	v.SetDefault("rate_limit.write_referrals.window", time.Minute)
	v.SetDefault("rate_limit.write_franchisee.limit", 20)
	v.SetDefault("rate_limit.write_franchisee.window", time.Minute)
	v.SetDefault("rate_limit.write_ops.limit", 30)
	v.SetDefault("rate_limit.write_ops.window", time.Minute)
	v.SetDefault("rate_limit.sweep_interval", time.Minute)
	v.SetDefault("rate_limit.sweep_grace", time.Minute)

	v.SetDefault("referral_hook.enabled", false)
	v.SetDefault("referral_hook.debug", false)
	v.SetDefault("referral_hook.mode", "local")
	v.SetDefault("referral_hook.timeout_ms", 1500)

	v.SetDefault("business.max_retry_count", 5)
}

// Load 读取配置：.env -> yaml 文件 -> 环境变量
//
// 配置文件不存在时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Config] 加载 .env 失败: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("读取配置文件失败: %w", err)
				}
			}
			log.Printf("[Config] 配置文件不存在，使用默认配置: %s", configPath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 逗号分隔的环境变量需要手动拆分
	cfg.Server.CORSAllowedOrigins = splitList(cfg.Server.CORSAllowedOrigins)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	return cfg, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	GlobalConfig = cfg
	return cfg
}

func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
