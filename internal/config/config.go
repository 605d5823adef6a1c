package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"babyshop/internal/domain"
)

type Config struct {
	Port           string            `yaml:"port"`
	DBDSN          string            `yaml:"db_dsn"`
	MediaDir       string            `yaml:"media_dir"`
	LogFile        string            `yaml:"log_file"`
	AdminPassword  string            `yaml:"admin_password"`
	PublicBaseURL  string            `yaml:"public_base_url"`
	Bucket         string            `yaml:"bucket"`
	MaxImageBytes  int64             `yaml:"max_image_bytes"`
	FreshWindow    time.Duration     `yaml:"fresh_window"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	SessionTTL     time.Duration     `yaml:"session_ttl"`
	OrphanSweep    string            `yaml:"orphan_sweep"`
	ImageDomains   []string          `yaml:"image_domains"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	WhatsApp       string            `yaml:"whatsapp"`
	Categories     []domain.Category `yaml:"categories"`
}

func Defaults() Config {
	return Config{
		Port:           "8080",
		DBDSN:          "babyshop.db", // sqlite file in project root
		MediaDir:       "./web/media",
		LogFile:        "./babyshop.log",
		AdminPassword:  "admin123",
		Bucket:         "products",
		MaxImageBytes:  5 << 20,
		FreshWindow:    48 * time.Hour,
		RequestTimeout: 10 * time.Second,
		SessionTTL:     12 * time.Hour,
		OrphanSweep:    "@every 1h",
		AllowedOrigins: []string{"http://localhost:3000"},
		WhatsApp:       "593984820981",
		Categories:     domain.DefaultCategories(),
	}
}

// Load builds the config from defaults, then CONFIG_FILE (yaml) if set, then env vars.
func Load() Config {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fc, err := LoadFile(path, cfg)
		if err != nil {
			log.Printf("[warn] %v; using defaults", err)
		} else {
			cfg = fc
		}
	}
	applyEnv(&cfg)

	log.Printf("[config] PORT=%s DB_DSN=%s MEDIA_DIR=%s LOG_FILE=%s BUCKET=%s CATEGORIES=%d",
		cfg.Port, cfg.DBDSN, cfg.MediaDir, cfg.LogFile, cfg.Bucket, len(cfg.Categories))
	return cfg
}

// LoadFile overlays the yaml file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = base.Categories
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := cast.ToDurationE(v)
			if err != nil || d <= 0 {
				log.Printf("[warn] ignoring %s=%q", key, v)
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	str("PORT", &cfg.Port)
	str("DB_DSN", &cfg.DBDSN)
	str("MEDIA_DIR", &cfg.MediaDir)
	str("LOG_FILE", &cfg.LogFile)
	str("ADMIN_PASSWORD", &cfg.AdminPassword)
	str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	str("BUCKET", &cfg.Bucket)
	str("WHATSAPP", &cfg.WhatsApp)
	if v, ok := os.LookupEnv("ORPHAN_SWEEP"); ok {
		cfg.OrphanSweep = v // empty disables the sweep
	}
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		if n, err := cast.ToInt64E(v); err == nil && n > 0 {
			cfg.MaxImageBytes = n
		} else {
			log.Printf("[warn] ignoring MAX_IMAGE_BYTES=%q", v)
		}
	}
	dur("FRESH_WINDOW", &cfg.FreshWindow)
	dur("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	dur("SESSION_TTL", &cfg.SessionTTL)
	list("IMAGE_DOMAINS", &cfg.ImageDomains)
	list("ALLOWED_ORIGINS", &cfg.AllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CategorySet is the validated category enumeration.
func (c Config) CategorySet() domain.CategorySet { return domain.NewCategorySet(c.Categories) }
