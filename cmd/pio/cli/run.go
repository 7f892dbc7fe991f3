package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/config"
	"pioreactor.com/dosing/internal/control"
	"pioreactor.com/dosing/internal/driver"
	"pioreactor.com/dosing/internal/identity"
	"pioreactor.com/dosing/internal/job"
	"pioreactor.com/dosing/internal/log"
	"pioreactor.com/dosing/internal/pump"
	"pioreactor.com/dosing/internal/telemetry"
)

// backgroundLogPath is where a `-b` launch tees stdout/stderr, mirroring the
// original CLI's `pio run <job> -b` behavior.
const backgroundLogPath = "/var/log/pioreactor.log"

var (
	runDetach       bool
	runMode         string
	runTargetOD     float64
	runTargetGR     float64
	runDuration     float64
	runVolume       float64
	runSensor       string
	runSkipFirstRun bool
	runVerbose      int
)

var runCmd = &cobra.Command{
	Use:   "run <job> [flags…]",
	Short: "Run a background job on this unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runDetach, "background", "b", false, "detach and tee logs to /var/log/pioreactor.log")
	runCmd.Flags().StringVar(&runMode, "mode", "", "dosing algorithm mode")
	runCmd.Flags().Float64Var(&runTargetOD, "target-od", 0, "target optical density")
	runCmd.Flags().Float64Var(&runTargetGR, "target-growth-rate", 0, "target growth rate (pid_morbidostat only)")
	runCmd.Flags().Float64Var(&runDuration, "duration", 0, "tick duration in minutes")
	runCmd.Flags().Float64Var(&runVolume, "volume", 0, "dose volume in mL")
	runCmd.Flags().StringVar(&runSensor, "sensor", "", "OD sensor name")
	runCmd.Flags().BoolVar(&runSkipFirstRun, "skip-first-run", false, "sleep one duration before the first tick")
	runCmd.Flags().CountVarP(&runVerbose, "verbose", "v", "increase log verbosity")
	rootCmd.AddCommand(runCmd)
}

// runJob launches jobName on this unit. Only "dosing_control" is
// implemented by this build; every other name from the original fleet's
// ALL_WORKER_JOBS list (stirring, od_reading, ...) is out of this spec's
// scope and is refused with a clear error rather than silently no-oping.
func runJob(ctx context.Context, jobName string) error {
	if jobName != "dosing_control" {
		return fmt.Errorf("pio: job %q is not implemented by this build; only dosing_control is", jobName)
	}

	if runDetach {
		return detachAndRun(os.Args[1:])
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("pio: load config: %w", err)
	}

	transport, err := newTransport(cfg.Bus)
	if err != nil {
		return fmt.Errorf("pio: bus transport: %w", err)
	}

	id := identity.Identity{Unit: cfg.Unit.Name, Experiment: cfg.Unit.Experiment}
	logger := log.New(cfg.Log, id.Unit, id.Experiment, jobName)
	if runVerbose > 0 {
		logger.Logger.SetLevel(logrus.DebugLevel)
	}

	mode := firstNonEmpty(runMode, cfg.Control.Mode)
	sensor := firstNonEmpty(runSensor, cfg.Control.Sensor)
	duration := firstNonZero(runDuration, cfg.Control.DurationMinutes)

	kwargs := map[string]string{
		"target_od":          formatFloat(firstNonZero(runTargetOD, cfg.Control.TargetOD)),
		"target_growth_rate": formatFloat(firstNonZero(runTargetGR, cfg.Control.TargetGrowthRate)),
		"duration":           formatFloat(duration),
		"volume":             formatFloat(firstNonZero(runVolume, cfg.Control.VolumeML)),
	}

	j, err := job.New(job.Options{
		Identity:  id,
		Name:      jobName,
		Transport: transport,
		Settings:  job.SettingsTable{},
		Log:       logger,
	})
	if err != nil {
		return fmt.Errorf("pio: construct job: %w", err)
	}

	var pumpDriver pump.Driver = &unimplementedPumpDriver{}
	actuator := pump.NewActuator(pumpDriver, telemetry.Adapter{Pub: j.Pub}, jobName)

	base, err := control.NewBase(j, sensor, actuator, nil)
	if err != nil {
		return fmt.Errorf("pio: construct control base: %w", err)
	}

	if err := j.AddSetting("active", job.Setting{
		Get: func() string {
			if base.Active.IsSet() {
				return "1"
			}
			return "0"
		},
		Set: job.ParseIntSetter(func(v int) {
			base.Active.SetTo(v != 0)
		}, func(raw string, err error) {
			logger.Errorf("active: could not parse %q: %v", raw, err)
		}),
	}); err != nil {
		return fmt.Errorf("pio: declare active setting: %w", err)
	}

	kwargs["sensor"] = sensor

	d, err := driver.New(driver.Options{
		Job:             j,
		Base:            base,
		Mode:            mode,
		DurationMinutes: duration,
		SkipFirstRun:    runSkipFirstRun || cfg.Control.SkipFirstRun,
		Kwargs:          kwargs,
	})
	if err != nil {
		return fmt.Errorf("pio: construct driver: %w", err)
	}

	if err := declareControlSettings(j, base, d, kwargs); err != nil {
		return err
	}

	if err := config.WatchReload(configFile, func(reloaded *config.GlobalConfig) {
		applyConfigReload(logger, d, reloaded)
	}); err != nil {
		return fmt.Errorf("pio: watch config reload: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go j.ListenForDisconnect(runCtx)

	return d.Run(runCtx)
}

// detachAndRun re-execs the current binary with the -b/--background flag
// stripped, redirecting its stdout/stderr to backgroundLogPath and
// detaching it from this process's session, then returns immediately so the
// foreground `pio run ... -b` invocation exits while the job keeps running.
func detachAndRun(args []string) error {
	filtered := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-b" || a == "--background" {
			continue
		}
		filtered = append(filtered, a)
	}

	logFile, err := os.OpenFile(backgroundLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("pio: open %s: %w", backgroundLogPath, err)
	}
	defer logFile.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("pio: resolve executable: %w", err)
	}

	cmd := exec.Command(self, filtered...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pio: start detached job: %w", err)
	}
	fmt.Printf("pio: %s detached, pid %d, logging to %s\n", filtered[0], cmd.Process.Pid, backgroundLogPath)
	return nil
}

// declareControlSettings declares the remaining editable settings spec §3.6
// requires of ControlAlgorithm (target_od, target_growth_rate, duration,
// volume, sensor) against the algorithm the driver actually resolved to.
// Each is wired to a real Set hook when the active mode supports it;
// otherwise it's declared Get-only, so $properties/$settable never
// over-advertises a write that handleSet would silently drop (spec §3.6,
// §4.4).
func declareControlSettings(j *job.Job, base *control.Base, d *driver.Driver, kwargs map[string]string) error {
	algo := d.Algo()

	declare := func(name string, set func(string) error) error {
		if err := j.AddSetting(name, job.Setting{
			Get: func() string { return kwargs[name] },
			Set: set,
		}); err != nil {
			return fmt.Errorf("pio: declare %s setting: %w", name, err)
		}
		return nil
	}

	floatSetter := func(name string, assign func(float64)) func(string) error {
		return job.ParseFloatSetter(func(v float64) {
			assign(v)
			kwargs[name] = formatFloat(v)
		}, func(raw string, err error) {
			j.Log.Errorf("%s: could not parse %q: %v", name, raw, err)
		})
	}

	if setter, ok := algo.(control.TargetODSetter); ok {
		if err := declare("target_od", floatSetter("target_od", setter.SetTargetOD)); err != nil {
			return err
		}
	} else if err := declare("target_od", nil); err != nil {
		return err
	}

	if setter, ok := algo.(control.VolumeSetter); ok {
		if err := declare("volume", floatSetter("volume", setter.SetVolume)); err != nil {
			return err
		}
	} else if err := declare("volume", nil); err != nil {
		return err
	}

	if setter, ok := algo.(control.TargetGrowthRateSetter); ok {
		if err := declare("target_growth_rate", floatSetter("target_growth_rate", setter.SetTargetGrowthRate)); err != nil {
			return err
		}
	} else if err := declare("target_growth_rate", nil); err != nil {
		return err
	}

	// duration always controls the driver's tick cadence, regardless of
	// mode, and additionally feeds PIDMorbidostat's per-tick dose
	// calculation via driver.SetDurationMinutes.
	if err := declare("duration", floatSetter("duration", d.SetDurationMinutes)); err != nil {
		return err
	}

	// sensor re-points Base's OD subscription, regardless of mode.
	if err := declare("sensor", func(raw string) error {
		if err := base.SetSensor(context.Background(), raw); err != nil {
			return err
		}
		kwargs["sensor"] = raw
		return nil
	}); err != nil {
		return err
	}

	return nil
}

// applyConfigReload hot-applies the subset of a reloaded config file that
// can safely change without restarting the job — log level and tick
// duration — mirroring the teacher's SIGHUP/config_reload path (§10.3).
// Identity and bus transport are not re-applied: spec §3 settings that
// would require re-entering init are only ever changed via the editable-
// settings protocol, never by a bare file reload.
func applyConfigReload(logger *logrus.Entry, d *driver.Driver, reloaded *config.GlobalConfig) {
	if reloaded.Log.Level != "" {
		if lvl, err := logrus.ParseLevel(reloaded.Log.Level); err == nil {
			logger.Logger.SetLevel(lvl)
		} else {
			logger.Warnf("config reload: invalid log level %q: %v", reloaded.Log.Level, err)
		}
	}
	if reloaded.Control.DurationMinutes != 0 {
		d.SetDurationMinutes(reloaded.Control.DurationMinutes)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func newTransport(cfg config.BusConfig) (bus.Transport, error) {
	switch cfg.Transport {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("bus.kafka.brokers must be set when bus.transport=kafka")
		}
		return bus.NewKafkaTransport(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID), nil
	default:
		return bus.NewMemTransport(4, 256), nil
	}
}

// unimplementedPumpDriver is a placeholder pump.Driver: GPIO pump control is
// an external collaborator out of this spec's scope, so the worker build
// wires a driver that logs what it would have done without touching
// hardware, rather than fabricating a fake GPIO dependency.
type unimplementedPumpDriver struct{}

func (unimplementedPumpDriver) AddMediaML(ctx context.Context, ml float64) error {
	logrus.WithField("ml", ml).Debug("add_media (no hardware driver wired)")
	return nil
}

func (unimplementedPumpDriver) AddAltMediaML(ctx context.Context, ml float64) error {
	logrus.WithField("ml", ml).Debug("add_alt_media (no hardware driver wired)")
	return nil
}

func (unimplementedPumpDriver) RemoveWasteML(ctx context.Context, ml float64) error {
	logrus.WithField("ml", ml).Debug("remove_waste (no hardware driver wired)")
	return nil
}

func (unimplementedPumpDriver) RemoveWasteDuration(ctx context.Context, d time.Duration) error {
	logrus.WithField("duration", d).Debug("remove_waste (no hardware driver wired)")
	return nil
}
