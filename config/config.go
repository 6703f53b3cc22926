package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
	// Origin фронтенда для CORS и проверки Origin у websocket
	FrontendURL string `yaml:"frontendUrl"`
}

type Auth struct {
	VerifyURL string `yaml:"verifyUrl"`
	Timeout   string `yaml:"timeout"` // e.g. "5s"
}

type Exec struct {
	EngineURL string `yaml:"engineUrl"`
	Timeout   string `yaml:"timeout"`
}

type Room struct {
	MaxMembers int `yaml:"maxMembers"`
}

type RateLimit struct {
	JoinPerMinute int    `yaml:"joinPerMinute"`
	APIBurst      int    `yaml:"apiBurst"`
	APIWindow     string `yaml:"apiWindow"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // relay-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Auth      Auth      `yaml:"auth"`
	Exec      Exec      `yaml:"exec"`
	Room      Room      `yaml:"room"`
	RateLimit RateLimit `yaml:"ratelimit"`
	Logging   Logging   `yaml:"logging"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Auth.VerifyURL == "" {
		return errors.New("auth.verifyUrl is required")
	}
	// установка дефолтов, если значения не указаны
	if c.HTTP.FrontendURL == "" {
		c.HTTP.FrontendURL = "http://localhost:5173"
	}
	if c.Room.MaxMembers <= 0 {
		c.Room.MaxMembers = 5
	}
	if c.RateLimit.JoinPerMinute <= 0 {
		c.RateLimit.JoinPerMinute = 10
	}
	if c.RateLimit.APIBurst <= 0 {
		c.RateLimit.APIBurst = 100
	}
	if c.RateLimit.APIWindow == "" {
		c.RateLimit.APIWindow = "15m"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "relay-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

func (c *Auth) ParsedTimeout() time.Duration {
	return parseDurationOr(5*time.Second, c.Timeout)
}

func (c *Exec) ParsedTimeout() time.Duration {
	return parseDurationOr(30*time.Second, c.Timeout)
}

func (c *RateLimit) ParsedAPIWindow() time.Duration {
	return parseDurationOr(15*time.Minute, c.APIWindow)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
