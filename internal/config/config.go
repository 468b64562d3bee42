// Package config loads process settings for the server binaries. Values come
// from built-in defaults, an optional config file and TANKARENA_* environment
// variables, in increasing priority. Gameplay numbers live in the tuning
// document instead.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "TANKARENA"

type Server struct {
	Addr       string
	WorldID    string
	TuningPath string
	Seed       int64

	LogLevel  string
	LogFormat string // "json", "console" or "auto"

	JournalDir      string
	Archive         Archive
	EnableAdminHTTP bool
	EnableMetrics   bool
}

// Archive points at an S3-compatible bucket that receives completed journal
// files. It is off while Endpoint or Bucket is empty.
type Archive struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func (a Archive) Enabled() bool { return a.Endpoint != "" && a.Bucket != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("world_id", "arena")
	v.SetDefault("tuning_path", "./configs/tuning.yaml")
	v.SetDefault("seed", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
	v.SetDefault("journal_dir", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.prefix", "tankarena")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("enable_admin_http", false)
	v.SetDefault("enable_metrics", true)
}

// Load reads settings into v. file may be empty.
func Load(v *viper.Viper, file string) (Server, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Server{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	s := Server{
		Addr:       v.GetString("addr"),
		WorldID:    v.GetString("world_id"),
		TuningPath: v.GetString("tuning_path"),
		Seed:       v.GetInt64("seed"),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  strings.ToLower(v.GetString("log_format")),
		JournalDir: v.GetString("journal_dir"),
		Archive: Archive{
			Endpoint:  v.GetString("archive.endpoint"),
			Bucket:    v.GetString("archive.bucket"),
			Region:    v.GetString("archive.region"),
			Prefix:    v.GetString("archive.prefix"),
			AccessKey: v.GetString("archive.access_key"),
			SecretKey: v.GetString("archive.secret_key"),
		},
		EnableAdminHTTP: v.GetBool("enable_admin_http"),
		EnableMetrics:   v.GetBool("enable_metrics"),
	}
	switch s.LogFormat {
	case "json", "console", "auto":
	default:
		return Server{}, fmt.Errorf("log_format %q: want json, console or auto", s.LogFormat)
	}
	if s.Archive.Enabled() && s.JournalDir == "" {
		return Server{}, fmt.Errorf("archive requires journal_dir")
	}
	return s, nil
}
