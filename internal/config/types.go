package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	Upload    UploadConfig    `json:"upload"`
	Thumbnail ThumbnailConfig `json:"thumbnail"`
	Database  Database        `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	R2        R2Config        `json:"r2"`
	Warmup    WarmupConfig    `json:"warmup_worker"`
	Sentry    SentryConfig    `json:"sentry"`
}

type ServerConfig struct {
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`     // seconds
	WriteTimeout    time.Duration `json:"write_timeout"`    // seconds
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // seconds
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

type ThumbnailConfig struct {
	DefaultWidth   int    `json:"default_width"`
	DefaultHeight  int    `json:"default_height"`
	DefaultQuality int    `json:"default_quality"`
	DefaultFit     string `json:"default_fit"`
	MaxWidth       int    `json:"max_width"`
	MaxHeight      int    `json:"max_height"`
	CacheMaxAge    int    `json:"cache_max_age"` // seconds, also the L1 redis TTL
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"` // overrides the R2 account endpoint (MinIO, localstack)
	Region      string `json:"region"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	MaxRetries  int    `json:"max_retries"`
}

type WarmupConfig struct {
	Enabled      bool          `json:"enabled"`
	Stream       string        `json:"stream"`        // redis stream name
	Group        string        `json:"group"`         // consumer group name
	Workers      int           `json:"workers"`       // number of concurrent goroutines
	MaxAttempts  int           `json:"max_attempts"`  // max retries before the job is dropped
	MaxLen       int64         `json:"max_len"`       // stream max length before trim
	BackoffBase  time.Duration `json:"backoff_base"`  // seconds, base retry delay
	BlockTimeout time.Duration `json:"block_timeout"` // seconds, XREADGROUP block timeout
	ClaimTTL     int           `json:"claim_ttl"`     // seconds a variant claim is held
	Consumer     string        `json:"consumer"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
