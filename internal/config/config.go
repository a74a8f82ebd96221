package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"custody/internal/ledger"
	"custody/pkg/money"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Business BusinessConfig `mapstructure:"business"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	GinMode  string `mapstructure:"gin_mode"`
	WorkerID int64  `mapstructure:"worker_id"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | postgres
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Kind    string   `mapstructure:"kind"` // kafka | nats
	Brokers []string `mapstructure:"brokers"`
	NatsURL string   `mapstructure:"nats_url"`
	Topic   string   `mapstructure:"topic"`
}

type BusinessConfig struct {
	Token            string        `mapstructure:"token"`
	BonusThreshold   string        `mapstructure:"bonus_threshold"`
	BonusAmount      string        `mapstructure:"bonus_amount"`
	WithdrawLock     time.Duration `mapstructure:"withdraw_lock"`
	ActivityLimit    int           `mapstructure:"activity_limit"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	LockRetries      int           `mapstructure:"lock_retries"`
	OutboxMaxRetries int           `mapstructure:"outbox_max_retries"`
}

type AdminConfig struct {
	AccountIDs []int64 `mapstructure:"account_ids"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const envPrefix = "CUSTODY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.database", "custody")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("broker.kind", "kafka")
	v.SetDefault("broker.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("broker.topic", "ledger_events")

	v.SetDefault("business.token", "USDT")
	v.SetDefault("business.bonus_threshold", "100")
	v.SetDefault("business.bonus_amount", "100")
	v.SetDefault("business.withdraw_lock", ledger.DefaultLockDuration)
	v.SetDefault("business.activity_limit", 10)
	v.SetDefault("business.lock_ttl", 30*time.Second)
	v.SetDefault("business.lock_retries", 30)
	v.SetDefault("business.outbox_max_retries", 5)

	v.SetDefault("admin.account_ids", []int64{})

	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件，configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if _, err := cfg.Business.BonusPolicy(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BonusPolicy 由配置构造赠金规则
func (b BusinessConfig) BonusPolicy() (ledger.BonusPolicy, error) {
	threshold, err := money.Parse(b.BonusThreshold)
	if err != nil {
		return ledger.BonusPolicy{}, fmt.Errorf("bonus_threshold 配置错误: %w", err)
	}
	amount, err := money.Parse(b.BonusAmount)
	if err != nil {
		return ledger.BonusPolicy{}, fmt.Errorf("bonus_amount 配置错误: %w", err)
	}
	if threshold < 0 || amount < 0 {
		return ledger.BonusPolicy{}, fmt.Errorf("赠金配置不能为负数")
	}
	return ledger.BonusPolicy{Threshold: threshold, Amount: amount}, nil
}

// IsAdmin 判断账户是否在管理员名单中
func (a AdminConfig) IsAdmin(accountID int64) bool {
	for _, id := range a.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
