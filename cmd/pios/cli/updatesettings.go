package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// updateSettingsCmd accepts arbitrary per-attribute flags (--target_od 1.0,
// --volume 0.5, …) that cobra's static flag set can't declare up front, so
// flag parsing is disabled and the arguments are walked by hand — the same
// "extra args" shape the original CLI's click command uses for this command
// only.
var updateSettingsCmd = &cobra.Command{
	Use:                "update-settings <job> --<attr> <value>…",
	Short:              "Publish attr=value to <job> on every unit in --units",
	Args:               cobra.MinimumNArgs(3),
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, rawArgs []string) error {
		job, units, pairs, err := parseUpdateSettingsArgs(rawArgs)
		if err != nil {
			return err
		}

		dispatcher, globalCfg, err := loadDispatcher()
		if err != nil {
			return err
		}

		experiment := globalCfg.Unit.Experiment
		for attr, value := range pairs {
			if err := dispatcher.UpdateSettings(cmd.Context(), experiment, job, attr, value, units); err != nil {
				return fmt.Errorf("pios: update-settings %s.%s: %w", job, attr, err)
			}
			fmt.Printf("pios: %s.%s = %s published to %v\n", job, attr, value, units)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateSettingsCmd)
}

// parseUpdateSettingsArgs splits rawArgs (job name, --attr value pairs, and
// the global --units/-y flags interleaved since flag parsing is disabled)
// into the job name, the resolved unit list, and the attr->value map.
func parseUpdateSettingsArgs(rawArgs []string) (job string, units []string, pairs map[string]string, err error) {
	if len(rawArgs) == 0 {
		return "", nil, nil, fmt.Errorf("pios: update-settings requires a job name")
	}
	job = rawArgs[0]
	pairs = map[string]string{}
	units = nil

	rest := rawArgs[1:]
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		switch tok {
		case "-y", "--y":
			// accepted for consistency with the other subcommands; this
			// command has no destructive confirmation step to skip.
			continue
		case "-c":
			tok = "--config"
		}
		if !strings.HasPrefix(tok, "--") {
			return "", nil, nil, fmt.Errorf("pios: unexpected argument %q, expected --<attr> <value>", tok)
		}
		name := strings.TrimPrefix(tok, "--")

		if i+1 >= len(rest) {
			return "", nil, nil, fmt.Errorf("pios: flag %q is missing its value", tok)
		}
		value := rest[i+1]
		i++

		switch name {
		case "units":
			units = strings.Split(value, ",")
		case "config", "c":
			configFile = value
		default:
			pairs[name] = value
		}
	}

	if len(pairs) == 0 {
		return "", nil, nil, fmt.Errorf("pios: at least one --<attr> <value> pair is required")
	}
	if units == nil {
		units = requestedUnits()
	}
	return job, units, pairs, nil
}
