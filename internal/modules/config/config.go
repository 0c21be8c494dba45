package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"
)

// Config ...
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Binance struct {
		APIKey     string `mapstructure:"api_key" yaml:"api_key"`
		APISecret  string `mapstructure:"api_secret" yaml:"api_secret"`
		RestURL    string `mapstructure:"rest_url" yaml:"rest_url"`
		WSURL      string `mapstructure:"ws_url" yaml:"ws_url"`
		RecvWindow int64  `mapstructure:"recv_window" yaml:"recv_window"`
		// Таймаут одного HTTP-запроса к бирже
		HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	} `mapstructure:"binance" yaml:"binance"`

	Journal struct {
		LedgerPath string `mapstructure:"ledger_path" yaml:"ledger_path"`
		StatePath  string `mapstructure:"state_path" yaml:"state_path"`
		// Часовой пояс колонки time в журнале (UTC, Asia/Seoul, ...)
		Timezone  string `mapstructure:"timezone" yaml:"timezone"`
		QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`

		// Бэкфилл: страница userTrades и период сверки
		PageSize         int           `mapstructure:"page_size" yaml:"page_size"`
		BackfillInterval time.Duration `mapstructure:"backfill_interval" yaml:"backfill_interval"`

		// Ретраи сетевых вызовов: фиксированное число попыток и пауза
		RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
		RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

		// Стабилизация снапшота позиции
		SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
		StabilizeAttempts int           `mapstructure:"stabilize_attempts" yaml:"stabilize_attempts"`
		StabilizeDelay    time.Duration `mapstructure:"stabilize_delay" yaml:"stabilize_delay"`

		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	} `mapstructure:"journal" yaml:"journal"`

	Downstream struct {
		// Команда, которую запускаем после пачки записей (генерация отчёта и т.п.)
		Command  []string      `mapstructure:"command" yaml:"command"`
		Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
		Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	} `mapstructure:"downstream" yaml:"downstream"`

	Telegram struct {
		Token  string `mapstructure:"token" yaml:"token"`
		ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
	} `mapstructure:"telegram" yaml:"telegram"`

	// Postgres-зеркало журнала, пусто: выключено
	DB string `mapstructure:"db_dsn" yaml:"db_dsn"`

	NATS struct {
		URL           string `mapstructure:"url" yaml:"url"`
		SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	} `mapstructure:"nats" yaml:"nats"`

	Tracing struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Host    string `mapstructure:"host" yaml:"host"`
		Port    int    `mapstructure:"port" yaml:"port"`
	} `mapstructure:"tracing" yaml:"tracing"`

	Service struct {
		Name      string `mapstructure:"name" yaml:"name"`
		Host      string `mapstructure:"host" yaml:"host"`
		AdminPort int    `mapstructure:"admin_port" yaml:"admin_port"`
	} `mapstructure:"service" yaml:"service"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("binance.rest_url", "https://dapi.binance.com")
	v.SetDefault("binance.ws_url", "wss://dstream.binance.com/ws")
	v.SetDefault("binance.recv_window", 5000)
	v.SetDefault("binance.http_timeout", "10s")

	v.SetDefault("journal.ledger_path", "trades_ws_v2.csv")
	v.SetDefault("journal.state_path", "trades_ws_v2_state.json")
	v.SetDefault("journal.timezone", "UTC")
	v.SetDefault("journal.queue_size", 10000)
	v.SetDefault("journal.page_size", 1000)
	v.SetDefault("journal.backfill_interval", "60s")
	v.SetDefault("journal.retry_attempts", 3)
	v.SetDefault("journal.retry_delay", "1s")
	v.SetDefault("journal.settle_delay", "500ms")
	v.SetDefault("journal.stabilize_attempts", 3)
	v.SetDefault("journal.stabilize_delay", "200ms")
	v.SetDefault("journal.heartbeat_interval", "5m")

	v.SetDefault("downstream.command", []string{})
	v.SetDefault("downstream.debounce", "5s")
	v.SetDefault("downstream.timeout", "2m")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("db_dsn", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "journal.trades")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("service.name", "trade-journal")
	v.SetDefault("service.host", "")
	v.SetDefault("service.admin_port", 8080)
}

// NewConfig: .env -> defaults -> configs/$CONFIG_FILE -> env.
// Отсутствующий файл не ошибка: работаем на дефолтах и переменных окружения.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = defaultConfigFile
	}
	path := configFileName
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(configDir, configFileName)
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// привычные имена переменных
	_ = v.BindEnv("binance.api_key", "BINANCE_API_KEY")
	_ = v.BindEnv("binance.api_secret", "BINANCE_API_SECRET")
	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("db_dsn", "DATABASE_DSN")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Journal.LedgerPath == "" {
		return errors.New("journal.ledger_path is required")
	}
	if c.Journal.StatePath == "" {
		return errors.New("journal.state_path is required")
	}
	if c.Journal.QueueSize <= 0 {
		return fmt.Errorf("journal.queue_size must be > 0, got %d", c.Journal.QueueSize)
	}
	if c.Journal.PageSize <= 0 {
		return fmt.Errorf("journal.page_size must be > 0, got %d", c.Journal.PageSize)
	}
	if _, err := time.LoadLocation(c.Journal.Timezone); err != nil {
		return fmt.Errorf("journal.timezone: %w", err)
	}
	return nil
}

// Location: часовой пояс колонки time журнала.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Journal.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Dump: эффективный конфиг в YAML, секреты замазаны.
func (c *Config) Dump() (string, error) {
	cp := *c
	cp.Binance.APIKey = redact(cp.Binance.APIKey)
	cp.Binance.APISecret = redact(cp.Binance.APISecret)
	cp.Telegram.Token = redact(cp.Telegram.Token)
	cp.DB = redact(cp.DB)

	bs, err := yaml.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("marshal config to yaml: %w", err)
	}
	return string(bs), nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
