package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"service-rates/internal"
	"service-rates/internal/poller"
)

type Config struct {
	DatabaseURL string
	EncodingKey string

	HTTPPort string

	RatesBaseURL       string
	BaseCCY            internal.CurrencyCode
	PollPeriod         time.Duration
	FetchTimeout       time.Duration
	Overlap            poller.OverlapPolicy
	InsecureSkipVerify bool

	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

func LoadConfig() (Config, error) {
	if err := godotenv.Overload(); err != nil {
		log.Println(errors.New("Error loading .env file"))
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (Config, error) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		HTTPPort:     "8080",
		RatesBaseURL: "https://revolut.duckdns.org/latest?base=",
		BaseCCY:      "EUR",
		PollPeriod:   internal.DefaultPeriod,
		FetchTimeout: 10 * time.Second,
		Overlap:      poller.OverlapConcurrent,
		RedisTTL:     time.Hour,
		KafkaTopic:   "currency-rates",
	}

	cfg.DatabaseURL = env("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is empty")
	}

	cfg.EncodingKey = env("ENCODING_KEY")
	if cfg.EncodingKey == "" {
		return Config{}, fmt.Errorf("ENCODING_KEY is empty")
	}

	if p := env("PORT"); p != "" {
		cfg.HTTPPort = p
	}

	switch v := env("RATES_BASE_URL"); v {
	case "":
	case internal.BlankURL:
		// fail-safe: every tick fails without touching the network
		cfg.RatesBaseURL = ""
	default:
		cfg.RatesBaseURL = v
	}

	if v := env("BASE_CCY"); v != "" {
		ccy, err := internal.NewCurrencyCode(v)
		if err != nil {
			return Config{}, fmt.Errorf("BASE_CCY: %w", err)
		}
		cfg.BaseCCY = ccy
	}

	var err error
	if cfg.PollPeriod, err = durationEnv(env, "RATES_POLL_PERIOD", cfg.PollPeriod); err != nil {
		return Config{}, err
	}
	if cfg.FetchTimeout, err = durationEnv(env, "RATES_FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RedisTTL, err = durationEnv(env, "REDIS_TTL", cfg.RedisTTL); err != nil {
		return Config{}, err
	}

	if cfg.Overlap, err = poller.ParseOverlapPolicy(env("RATES_OVERLAP")); err != nil {
		return Config{}, fmt.Errorf("RATES_OVERLAP: %w", err)
	}

	if v := env("RATES_INSECURE_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("RATES_INSECURE_SKIP_VERIFY: %w", err)
		}
		cfg.InsecureSkipVerify = b
	}

	cfg.RedisAddr = env("REDIS_ADDR")
	cfg.RedisPassword = getenv("REDIS_PASSWORD")

	for _, b := range strings.Split(env("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	if t := env("KAFKA_TOPIC"); t != "" {
		cfg.KafkaTopic = t
	}

	if err := cfg.Template().For(cfg.BaseCCY).Validate(); err != nil {
		return Config{}, fmt.Errorf("RATES_BASE_URL: %w", err)
	}

	return cfg, nil
}

// Template builds fetch jobs for the configured rates API.
func (c Config) Template() internal.JobTemplate {
	return internal.JobTemplate{BaseURL: c.RatesBaseURL, Period: c.PollPeriod}
}

func durationEnv(env func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
