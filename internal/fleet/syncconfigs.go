package fleet

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// ConfigSource resolves the local paths sync-configs ships to each unit.
// Grounded on afero (pulled in indirectly by the teacher's viper dependency;
// wired here directly so the config-sync path is testable against an
// in-memory filesystem instead of the real disk).
type ConfigSource struct {
	Fs          afero.Fs
	ConfigDir   string // e.g. /home/pi/.pioreactor
	GlobalName  string // e.g. config.ini
}

// GlobalConfigPath returns the path to the shared global config, erroring
// if it does not exist.
func (c ConfigSource) GlobalConfigPath() (string, error) {
	path := filepath.Join(c.ConfigDir, c.GlobalName)
	exists, err := afero.Exists(c.Fs, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("fleet: global config %s not found", path)
	}
	return path, nil
}

// UnitConfigPath returns the per-unit config path for unit, or "" if none
// exists — mirroring pios.py's "Did you forget to create a config_<unit>.ini"
// warning, surfaced here as an absent path rather than a raised exception.
func (c ConfigSource) UnitConfigPath(unit string) string {
	path := filepath.Join(c.ConfigDir, fmt.Sprintf("config_%s.ini", unit))
	exists, err := afero.Exists(c.Fs, path)
	if err != nil || !exists {
		return ""
	}
	return path
}
