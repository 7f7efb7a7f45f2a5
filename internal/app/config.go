package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/gradebridge-backend/internal/platform/envutil"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type Config struct {
	DBDriver   string
	SQLitePath string
	Port       string

	ImportWorkers      int
	SweepBatchSize     int
	ProjectorBatchSize int
	FuzzyThreshold     int
	ExactThreshold     int

	RedisAddr    string
	RedisChannel string
	SweepLockTTL time.Duration

	HierarchySeedFile string
	CORSOrigins       []string
	MetricsEnabled    bool
}

// LoadDotEnv reads .env (or ENV_FILE) into the process environment when present. Variables
// already set win.
func LoadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		DBDriver:   envutil.String("DB_DRIVER", "sqlite", log),
		SQLitePath: envutil.String("SQLITE_PATH", "data/gradebridge.db", log),
		Port:       envutil.String("PORT", "8080", log),

		ImportWorkers:      envutil.Int("IMPORT_WORKERS", 4, log),
		SweepBatchSize:     envutil.Int("SWEEP_BATCH_SIZE", 500, log),
		ProjectorBatchSize: envutil.Int("PROJECTOR_BATCH_SIZE", 200, log),
		FuzzyThreshold:     envutil.Int("IDENTITY_FUZZY_THRESHOLD", 2, log),
		ExactThreshold:     envutil.Int("IDENTITY_EXACT_THRESHOLD", 9, log),

		RedisAddr:    envutil.String("REDIS_ADDR", "", log),
		RedisChannel: envutil.String("REDIS_CHANNEL", "gradebridge", log),
		SweepLockTTL: envutil.Duration("SWEEP_LOCK_TTL", 10*time.Minute, log),

		HierarchySeedFile: envutil.String("HIERARCHY_SEED_FILE", "", log),
		CORSOrigins:       splitList(envutil.String("CORS_ORIGINS", "", log)),
		MetricsEnabled:    envutil.Bool("METRICS_ENABLED", true, log),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
