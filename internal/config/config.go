package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tool locations, same as a stock IDA + BinDiff install.
const (
	DefaultDiffPath    = "/bin/diff"
	DefaultBinDiffPath = "/bin/bindiff"
	DefaultIdatPath    = "/bin/idat"
	DefaultIdat64Path  = "/bin/idat64"
)

// Disassembler selection modes
const (
	DisassemblerAuto   = "auto"
	DisassemblerIdat   = "idat"
	DisassemblerIdat64 = "idat64"
)

type Tools struct {
	Diff    string `yaml:"diff"`
	BinDiff string `yaml:"bindiff"`
	Idat    string `yaml:"idat"`
	Idat64  string `yaml:"idat64"`

	// auto | idat | idat64
	Disassembler string   `yaml:"disassembler"`
	DiffArgs     []string `yaml:"diffArgs"`

	StepTimeout    time.Duration `yaml:"stepTimeout"`
	BinDiffTimeout time.Duration `yaml:"bindiffTimeout"`
}

// Pool sizes the SQL connection pool. Comparisons are few and long, so the
// defaults stay small.
type Pool struct {
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CorsOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Tools Tools `yaml:"tools"`

	// WorkDir menampung result directory per comparison (mode API)
	WorkDir string `yaml:"workDir"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Pool     Pool   `yaml:"pool"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	Auth struct {
		// tenant -> api key
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Log struct {
		Level   string `yaml:"level"`
		NoColor bool   `yaml:"noColor"`
	} `yaml:"log"`
}

// Default returns a config usable without any file on disk.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOptional is Load, except a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Tools.Diff == "" {
		c.Tools.Diff = DefaultDiffPath
	}
	if c.Tools.BinDiff == "" {
		c.Tools.BinDiff = DefaultBinDiffPath
	}
	if c.Tools.Idat == "" {
		c.Tools.Idat = DefaultIdatPath
	}
	if c.Tools.Idat64 == "" {
		c.Tools.Idat64 = DefaultIdat64Path
	}
	if c.Tools.Disassembler == "" {
		c.Tools.Disassembler = DisassemblerAuto
	}
	if c.Tools.StepTimeout <= 0 {
		c.Tools.StepTimeout = 600 * time.Second
	}
	if c.Tools.BinDiffTimeout <= 0 {
		c.Tools.BinDiffTimeout = 1000 * time.Second
	}
	if c.WorkDir == "" {
		c.WorkDir = "./results"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Pool.MaxOpenConns <= 0 {
		c.Database.Pool.MaxOpenConns = 10
	}
	if c.Database.Pool.MaxIdleConns <= 0 {
		c.Database.Pool.MaxIdleConns = 5
	}
	if c.Database.Pool.ConnMaxLifetime <= 0 {
		c.Database.Pool.ConnMaxLifetime = 30 * time.Minute
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillRate <= 0 {
		c.RateLimit.RefillRate = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Tools.Disassembler {
	case DisassemblerAuto, DisassemblerIdat, DisassemblerIdat64:
	default:
		return fmt.Errorf("tools.disassembler must be one of auto, idat, idat64 (got %q)", c.Tools.Disassembler)
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver must be mysql or postgres (got %q)", c.Database.Driver)
	}
	return nil
}

// DatabaseEnabled reports whether a SQL database is configured; without one
// the API keeps comparisons in memory.
func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.Database.Host) != ""
}

// MinioEnabled reports whether artifact upload is configured.
func (c *Config) MinioEnabled() bool {
	return strings.TrimSpace(c.Minio.Endpoint) != "" && strings.TrimSpace(c.Minio.BucketName) != ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (lib/pq)
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
