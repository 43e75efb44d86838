package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ETCD       ETCDConfig       `mapstructure:"etcd"`
	GraphQL    GraphQLConfig    `mapstructure:"graphql"`
	Lock       LockConfig       `mapstructure:"lock"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Keeper     KeeperConfig     `mapstructure:"keeper"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 快照缓存Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int      `mapstructure:"partition"`
	GroupID   string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

// LockConfig 分布式锁，backend 可选 etcd、redis、local
type LockConfig struct {
	Backend        string        `mapstructure:"backend"`
	WriterLockName string        `mapstructure:"writer_lock_name"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
}

// LedgerConfig 账本参数，金额单位 gwei
type LedgerConfig struct {
	Owner    string        `mapstructure:"owner"`
	Address  string        `mapstructure:"address"`
	Fee      uint64        `mapstructure:"fee"`
	LongLock time.Duration `mapstructure:"long_lock"`
}

// SettlementConfig 资金划转通道，backend 可选 mysql、memory
type SettlementConfig struct {
	Backend string `mapstructure:"backend"`
}

// KeeperConfig 自动关闭到期轮次
type KeeperConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Address     string        `mapstructure:"address"`
	LockName    string        `mapstructure:"lock_name"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("graphql.path", "/graphql")

	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("redis.snapshot_ttl", 24*time.Hour)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.topic", "ledger-events")
	v.SetDefault("kafka.group_id", "voteledger")

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.request_timeout", 3*time.Second)
	v.SetDefault("etcd.session_ttl", 10*time.Second)

	v.SetDefault("lock.backend", "etcd")
	v.SetDefault("lock.writer_lock_name", "voteledger:writer:lock")
	v.SetDefault("lock.acquire_timeout", 30*time.Second)
	v.SetDefault("lock.retry_count", 3)

	// 空默认值让 viper 识别这些键，环境变量才能覆盖
	v.SetDefault("ledger.owner", "")
	v.SetDefault("ledger.address", "")
	v.SetDefault("ledger.fee", uint64(100_000_000))
	v.SetDefault("ledger.long_lock", 72*time.Hour)

	v.SetDefault("settlement.backend", "mysql")

	v.SetDefault("keeper.enabled", false)
	v.SetDefault("keeper.interval", time.Minute)
	v.SetDefault("keeper.address", "")
	v.SetDefault("keeper.lock_name", "voteledger:keeper:lock")
	v.SetDefault("keeper.lock_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig 加载配置文件，环境变量 LEDGER_OWNER 覆盖 ledger.owner，以此类推
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &AppConfig, nil
}

// Validate 检查必填项和枚举值
func (c *Config) Validate() error {
	if c.Ledger.Owner == "" {
		return fmt.Errorf("配置缺少 ledger.owner")
	}
	if c.Ledger.Address == "" {
		return fmt.Errorf("配置缺少 ledger.address")
	}
	switch c.Lock.Backend {
	case "etcd", "redis", "local":
	default:
		return fmt.Errorf("不支持的锁类型: %s", c.Lock.Backend)
	}
	switch c.Settlement.Backend {
	case "mysql", "memory":
	default:
		return fmt.Errorf("不支持的划转通道: %s", c.Settlement.Backend)
	}
	if c.Keeper.Enabled && c.Keeper.Address == "" {
		return fmt.Errorf("启用 keeper 时必须配置 keeper.address")
	}
	return nil
}
