package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pioreactor.com/dosing/internal/fleet"
)

var syncConfigsCmd = &cobra.Command{
	Use:   "sync-configs",
	Short: "Copy the global config and each unit's per-host config to every unit in --units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dispatcher, globalCfg, err := loadDispatcher()
		if err != nil {
			return err
		}

		source := fleet.ConfigSource{
			Fs:         afero.NewOsFs(),
			ConfigDir:  filepath.Dir(configFile),
			GlobalName: filepath.Base(configFile),
		}
		globalPath, err := source.GlobalConfigPath()
		if err != nil {
			return fmt.Errorf("pios: %w", err)
		}

		err = dispatcher.SyncConfigs(cmd.Context(), globalPath, source.UnitConfigPath, globalCfg.Fleet.RemoteDir, requestedUnits())
		if err != nil {
			return fmt.Errorf("pios: sync-configs: %w", err)
		}
		fmt.Printf("pios: configs synced to %v\n", requestedUnits())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncConfigsCmd)
}
