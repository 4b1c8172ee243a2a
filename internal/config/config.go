package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Telegram Telegram `mapstructure:"telegram"`
	Monitor  Monitor  `mapstructure:"monitor"`
	Logger   Logger   `mapstructure:"logger"`
	API      API      `mapstructure:"api"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance REST API and kline streams.
type Binance struct {
	ApiKey         string        `mapstructure:"apiKey"`
	Testnet        bool          `mapstructure:"testnet"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	WsURL          string        `mapstructure:"ws_url"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// Telegram holds the configuration for the group chat bot.
type Telegram struct {
	Enabled        bool    `mapstructure:"enabled"`
	Name           string  `mapstructure:"name"`
	Token          string  `mapstructure:"token"`
	ChatID         int64   `mapstructure:"chat_id"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// MaxWait bounds how long a message waits for the rate limiter before it is dropped.
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// Monitor holds the configuration for call monitoring.
type Monitor struct {
	Interval     string        `mapstructure:"interval"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	DirectoryTTL time.Duration `mapstructure:"directory_ttl"`
	// Investment is the quote currency budget of every call, as a decimal string.
	Investment string `mapstructure:"investment"`
}

// API holds the configuration for the live status server of the bot.
type API struct {
	Port int `mapstructure:"port"`
}

// Server holds the configuration for the history web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.read_timeout", 5*time.Minute)

	// Telegram allows roughly one message per second in a group.
	v.SetDefault("telegram.name", "Crypto Call Bot")
	v.SetDefault("telegram.rate_limit", 1)
	v.SetDefault("telegram.rate_limit_burst", 3)
	v.SetDefault("telegram.max_wait", 5*time.Second)

	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.retry_delay", 5*time.Second)
	v.SetDefault("monitor.directory_ttl", time.Hour)
	v.SetDefault("monitor.investment", "100")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("database.dsn", "callbot.db")
	v.SetDefault("server.port", 8080)
}
