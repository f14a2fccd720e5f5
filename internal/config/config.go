package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Create new config instance with service defaults
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Upload: UploadConfig{
			MaxRequestBodyMB:     20,
			MaxMultipartMemoryMB: 8,
		},
		Thumbnail: ThumbnailConfig{
			DefaultWidth:   400,
			DefaultHeight:  300,
			DefaultQuality: 80,
			DefaultFit:     "cover",
			MaxWidth:       2048,
			MaxHeight:      2048,
			CacheMaxAge:    86400,
		},
		R2: R2Config{
			Region:     "auto",
			Workers:    8,
			QueueSize:  1000,
			MaxRetries: 3,
		},
		Warmup: WarmupConfig{
			Stream:       "kuechentakt:thumbs:warmup",
			Group:        "thumb-warmers",
			Workers:      2,
			MaxAttempts:  5,
			MaxLen:       10000,
			BackoffBase:  1,
			BlockTimeout: 5,
			ClaimTTL:     60,
			Consumer:     "thumbnailer",
		},
		Redis: RedisConfig{
			HealthCheckInterval: 30,
			DialTimeout:         5,
			ReadTimeout:         3,
			WriteTimeout:        3,
		},
	}
}

// Load configuration file in json format. A missing file is not an error,
// the defaults and environment still apply.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

// ApplyEnv overrides secrets and deployment specific values from the environment.
func (c *Config) ApplyEnv() {
	setString(&c.R2.AccountID, "R2_ACCOUNT_ID")
	setString(&c.R2.BucketName, "R2_BUCKET_NAME")
	setString(&c.R2.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&c.R2.SecretKey, "R2_SECRET_ACCESS_KEY")
	setString(&c.R2.Endpoint, "R2_ENDPOINT")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Sentry.SentryDSN, "SENTRY_DSN")
	setString(&c.Sentry.Environment, "SENTRY_ENVIRONMENT")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v, err := strconv.Atoi(os.Getenv("SERVER_PORT")); err == nil && v > 0 {
		c.Server.Port = v
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
