package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config определяет структуру конфигурации всего движка синхронизации целиком
type Config struct {
	Remote `yaml:"remote"`
	Cache  `yaml:"cache"`
	Poll   `yaml:"poll"`
	Logger `yaml:"logger"`
}

// Remote содержит конфигурацию для клиента remote resource API
type Remote struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Cache содержит TTL-таблицу по типам ресурсов
// нулевой TTL означает «не кэшировать вовсе» — каждый запрос идёт в сеть
type Cache struct {
	TTL map[string]time.Duration `yaml:"ttl"`
}

// Poll содержит параметры адаптивного опроса
type Poll struct {
	BaseInterval time.Duration `yaml:"base_interval"`
	FastInterval time.Duration `yaml:"fast_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	IdleAfter    time.Duration `yaml:"idle_after"`
}

// Logger содержит конфигурацию для логгера
type Logger struct {
	Level string `yaml:"level"`
}

// MustLoad загружает конфигурацию из файла по указанному пути
// в случае ошибки программа завершается с фатальной ошибкой
func MustLoad(configPath string) *Config {
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	file, err := os.ReadFile(configPath)
	if err != nil {
		log.Fatalf("failed to read config file: %s", err)
	}

	if err := yaml.Unmarshal(file, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %s", err)
	}

	cfg.applyDefaults()

	return &cfg
}

// applyDefaults подставляет разумные значения для незаполненных полей,
// чтобы пустая секция в yaml не приводила к нулевым интервалам
func (c *Config) applyDefaults() {
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Poll.BaseInterval == 0 {
		c.Poll.BaseInterval = 10 * time.Second
	}
	if c.Poll.FastInterval == 0 {
		c.Poll.FastInterval = 3 * time.Second
	}
	if c.Poll.MaxInterval == 0 {
		c.Poll.MaxInterval = 2 * time.Minute
	}
	if c.Poll.IdleAfter == 0 {
		c.Poll.IdleAfter = 30 * time.Second
	}
	if c.Cache.TTL == nil {
		c.Cache.TTL = DefaultTTL()
	}
}

// DefaultTTL возвращает TTL-таблицу по умолчанию:
// заказы — всегда свежие (не кэшируются), каталожные ресурсы — минутами
func DefaultTTL() map[string]time.Duration {
	return map[string]time.Duration{
		"orders":     0,
		"menu":       5 * time.Minute,
		"offers":     5 * time.Minute,
		"specials":   5 * time.Minute,
		"categories": 15 * time.Minute,
		"settings":   10 * time.Minute,
	}
}
