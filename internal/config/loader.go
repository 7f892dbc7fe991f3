package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load reads the global configuration from path (YAML/TOML/JSON, detected by
// viper from the extension) and applies defaults for anything left unset.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	if cfg.Unit.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("config: resolve unit name: %w", err)
		}
		cfg.Unit.Name = hostname
	}

	return &cfg, nil
}

// WatchReload re-reads the config file on change and invokes onChange with
// the freshly parsed config. Mirrors the teacher's SIGHUP config-reload path,
// but driven by fsnotify via viper instead of a signal, since non-identity
// settings here are meant to be hot-reloadable without restarting the job.
func WatchReload(path string, onChange func(*GlobalConfig)) error {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg GlobalConfig
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.transport", "memory")
	v.SetDefault("bus.keep_alive", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", "%time [%level] %field %msg")
	v.SetDefault("log.time", "2006-01-02T15:04:05.000Z07:00")
	v.SetDefault("control.duration", 30)
	v.SetDefault("control.sensor", "135/A")
	v.SetDefault("fleet.max_concurrent", 8)
	v.SetDefault("fleet.remote_dir", "/home/pi/.pioreactor")
	v.SetDefault("fleet.ssh.user", "pi")
	v.SetDefault("fleet.ssh.port", 22)
	v.SetDefault("fleet.ssh.dial_timeout", "10s")
}
