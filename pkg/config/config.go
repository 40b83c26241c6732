package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Timetable TimetableConfig
	Queue     QueueConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TimetableConfig tunes the solver and the proposal lifecycle.
type TimetableConfig struct {
	Enabled          bool
	ProposalTTL      time.Duration
	ResultCacheTTL   time.Duration
	JobTTL           time.Duration
	SweepInterval    time.Duration
	MaxNodes         int
	Timeout          time.Duration
	MaxSolutions     int
	Workers          int
	RespectPublished bool
	Weights          WeightsConfig
}

// WeightsConfig scales the soft-constraint components.
type WeightsConfig struct {
	Cluster    float64
	Spread     float64
	TimeOfDay  float64
	Repetition float64
	Preferred  float64
}

// QueueConfig sizes the background session queue.
type QueueConfig struct {
	Buffer     int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_DATABASE"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Timetable = TimetableConfig{
		Enabled:          v.GetBool("ENABLE_TIMETABLE"),
		ProposalTTL:      parseDuration(v.GetString("TIMETABLE_PROPOSAL_TTL"), 30*time.Minute),
		ResultCacheTTL:   parseDuration(v.GetString("TIMETABLE_RESULT_CACHE_TTL"), 10*time.Minute),
		JobTTL:           parseDuration(v.GetString("TIMETABLE_JOB_TTL"), time.Hour),
		SweepInterval:    parseDuration(v.GetString("TIMETABLE_SWEEP_INTERVAL"), 5*time.Minute),
		MaxNodes:         nonNegative(v.GetInt("TIMETABLE_MAX_NODES")),
		Timeout:          parseDuration(v.GetString("TIMETABLE_TIMEOUT"), 5*time.Second),
		MaxSolutions:     atLeastOne(v.GetInt("TIMETABLE_MAX_SOLUTIONS")),
		Workers:          atLeastOne(v.GetInt("TIMETABLE_WORKERS")),
		RespectPublished: v.GetBool("TIMETABLE_RESPECT_PUBLISHED"),
		Weights: WeightsConfig{
			Cluster:    v.GetFloat64("TIMETABLE_WEIGHT_CLUSTER"),
			Spread:     v.GetFloat64("TIMETABLE_WEIGHT_SPREAD"),
			TimeOfDay:  v.GetFloat64("TIMETABLE_WEIGHT_TIME_OF_DAY"),
			Repetition: v.GetFloat64("TIMETABLE_WEIGHT_REPETITION"),
			Preferred:  v.GetFloat64("TIMETABLE_WEIGHT_PREFERRED"),
		},
	}

	cfg.Queue = QueueConfig{
		Buffer:     atLeastOne(v.GetInt("TIMETABLE_QUEUE_BUFFER")),
		MaxRetries: atLeastOne(v.GetInt("TIMETABLE_QUEUE_RETRIES")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ENABLE_DATABASE", true)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_TIMETABLE", true)
	v.SetDefault("TIMETABLE_PROPOSAL_TTL", "30m")
	v.SetDefault("TIMETABLE_RESULT_CACHE_TTL", "10m")
	v.SetDefault("TIMETABLE_JOB_TTL", "1h")
	v.SetDefault("TIMETABLE_SWEEP_INTERVAL", "5m")
	v.SetDefault("TIMETABLE_MAX_NODES", 200000)
	v.SetDefault("TIMETABLE_TIMEOUT", "5s")
	v.SetDefault("TIMETABLE_MAX_SOLUTIONS", 1)
	v.SetDefault("TIMETABLE_WORKERS", 4)
	v.SetDefault("TIMETABLE_RESPECT_PUBLISHED", false)
	v.SetDefault("TIMETABLE_WEIGHT_CLUSTER", 1.0)
	v.SetDefault("TIMETABLE_WEIGHT_SPREAD", 1.0)
	v.SetDefault("TIMETABLE_WEIGHT_TIME_OF_DAY", 0.5)
	v.SetDefault("TIMETABLE_WEIGHT_REPETITION", 2.0)
	v.SetDefault("TIMETABLE_WEIGHT_PREFERRED", 0.5)

	v.SetDefault("TIMETABLE_QUEUE_BUFFER", 16)
	v.SetDefault("TIMETABLE_QUEUE_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
