// Package config handles global configuration loading using viper, the way
// the teacher's internal/config package loads its capture-agent config.
package config

import "time"

// GlobalConfig is the top-level static configuration; its sections are
// read from the root of the config file.
type GlobalConfig struct {
	Unit    UnitConfig    `mapstructure:"unit"`
	Bus     BusConfig     `mapstructure:"bus"`
	Log     LogConfig     `mapstructure:"log"`
	Control ControlConfig `mapstructure:"control"`
	Fleet   FleetConfig   `mapstructure:"fleet"`
}

// UnitConfig identifies this host and the experiment it participates in.
type UnitConfig struct {
	Name       string `mapstructure:"name"`       // empty = os.Hostname()
	Experiment string `mapstructure:"experiment"`
}

// BusConfig configures the pub/sub bus client.
type BusConfig struct {
	Transport string        `mapstructure:"transport"` // "memory" | "kafka"
	Kafka     KafkaConfig   `mapstructure:"kafka"`
	KeepAlive time.Duration `mapstructure:"keep_alive"` // default 10s
}

// KafkaConfig configures the Kafka-backed bus transport.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"` // single shared topic; logical topics ride in each record's JSON envelope
	GroupID string   `mapstructure:"group_id"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	Pattern string        `mapstructure:"pattern"` // e.g. "%time [%level] %field %msg"
	Time    string        `mapstructure:"time"`
	File    FileAppender  `mapstructure:"file"`
	Colors  bool          `mapstructure:"colors"`
}

// FileAppender configures log-file rotation via lumberjack.
type FileAppender struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ControlConfig carries the dosing-algorithm kwargs (spec §6 "Algorithm kwargs").
type ControlConfig struct {
	Mode               string  `mapstructure:"mode"`
	TargetOD           float64 `mapstructure:"target_od"`
	TargetGrowthRate   float64 `mapstructure:"target_growth_rate"`
	DurationMinutes    float64 `mapstructure:"duration"`
	VolumeML           float64 `mapstructure:"volume"`
	Sensor             string  `mapstructure:"sensor"`
	SkipFirstRun       bool    `mapstructure:"skip_first_run"`
	Verbose            int     `mapstructure:"verbose"`
}

// DefaultControlConfig returns the spec §6 defaults.
func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		DurationMinutes: 30,
		Sensor:          "135/A",
	}
}

// FleetConfig configures the leader-side fleet dispatcher.
type FleetConfig struct {
	Leader        bool     `mapstructure:"leader"`
	Units         []string `mapstructure:"units"`
	MaxConcurrent int      `mapstructure:"max_concurrent"` // bounded worker pool size, default 8
	ConfigDir     string   `mapstructure:"config_dir"`     // per-unit config destination root
	RemoteDir     string   `mapstructure:"remote_dir"`     // per-unit config destination on the worker
	SSH           SSHConfig `mapstructure:"ssh"`
}

// SSHConfig configures the leader's SSH connection to each worker unit.
type SSHConfig struct {
	User        string        `mapstructure:"user"`
	Port        int           `mapstructure:"port"` // default 22
	KeyPath     string        `mapstructure:"key_path"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"` // default 10s
}
