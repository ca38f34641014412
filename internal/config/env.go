package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
}

type StoreEnv struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:".taskloom/taskloom.db"`
	// Postgres settings (used when Driver == "postgres")
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
}

type BlobEnv struct {
	Type    string `envconfig:"BLOB_TYPE" default:"local"`
	BaseDir string `envconfig:"BLOB_BASE_DIR" default:".taskloom/blobs"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskloom/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@taskloom.dev"`
}

type ReminderEnv struct {
	Enabled   bool          `envconfig:"REMINDER_ENABLED" default:"true"`
	Interval  time.Duration `envconfig:"REMINDER_INTERVAL" default:"10m"`
	Lookahead time.Duration `envconfig:"REMINDER_LOOKAHEAD" default:"24h"`
}

type Env struct {
	BaseEnv
	StoreEnv
	BlobEnv
	VAPIDEnv
	ReminderEnv
}

const namespace = "TASKLOOM"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StoreEnvFromEnv(env *Env) *StoreEnv {
	return &env.StoreEnv
}

func BlobEnvFromEnv(env *Env) *BlobEnv {
	return &env.BlobEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}

func ReminderEnvFromEnv(env *Env) *ReminderEnv {
	return &env.ReminderEnv
}
