package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type ArchiveConfig struct {
	Kind        string `validate:"oneof=file sqlite postgres"`
	Path        string `validate:"required_unless=Kind postgres"`
	DatabaseURL string `validate:"required_if=Kind postgres"`
}

type APIConfig struct {
	Addr            string        `validate:"required"`
	AccrualEvery    time.Duration `validate:"gt=0"`
	TickEvery       time.Duration `validate:"gt=0"`
	DecisionTimeout time.Duration `validate:"gt=0"`
	AdvisorURL      string        `validate:"omitempty,url"`
	AdvisorAPIKey   string
	StartMoney      float64 `validate:"gte=0"`
	StartStock      float64 `validate:"gte=0"`
	LendersFile     string
	RatePerMinute   float64 `validate:"gt=0"`
	RateBurst       int     `validate:"gte=1"`
	Archive         ArchiveConfig
}

type CLIConfig struct {
	APIBaseURL string
}

var validate = validator.New()

// LoadAPIFromEnv reads the daemon configuration. A .env file in the working
// directory is applied first without overriding variables already set.
func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CAFE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		AccrualEvery:    envDurationDefault("CAFE_ACCRUAL_EVERY", 30*time.Second),
		TickEvery:       envDurationDefault("CAFE_TICK_EVERY", time.Second),
		DecisionTimeout: envDurationDefault("CAFE_DECISION_TIMEOUT", 3*time.Second),
		AdvisorURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("ADVISOR_URL")), "/"),
		AdvisorAPIKey:   strings.TrimSpace(os.Getenv("ADVISOR_API_KEY")),
		StartMoney:      envFloatDefault("CAFE_START_MONEY", 200),
		StartStock:      envFloatDefault("CAFE_START_STOCK", 100),
		LendersFile:     strings.TrimSpace(os.Getenv("CAFE_LENDERS_FILE")),
		RatePerMinute:   envFloatDefault("CAFE_RATE_PER_MINUTE", 120),
		RateBurst:       envIntDefault("CAFE_RATE_BURST", 20),
		Archive:         LoadArchiveFromEnv(),
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadArchiveFromEnv() ArchiveConfig {
	_ = godotenv.Load()
	kind := strings.ToLower(envDefault("CAFE_ARCHIVE", "file"))
	path := strings.TrimSpace(os.Getenv("CAFE_ARCHIVE_PATH"))
	if path == "" {
		switch kind {
		case "sqlite":
			path = "cafe.db"
		case "file":
			path = "exports"
		}
	}
	return ArchiveConfig{
		Kind:        kind,
		Path:        path,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

func LoadCLIFromEnv() CLIConfig {
	_ = godotenv.Load()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("CAFE_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// Validate checks struct tags and reports every failing field at once.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s (value %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
