package cli

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/config"
	"pioreactor.com/dosing/internal/fleet"
	"pioreactor.com/dosing/internal/identity"
)

const fleetBroadcast = identity.Broadcast

// loadDispatcher builds a fleet.Dispatcher from the global config, wiring a
// real SSH-backed Runner and a bus transport matching the worker's.
func loadDispatcher() (*fleet.Dispatcher, *config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("pios: load config: %w", err)
	}

	signer, err := loadSigner(cfg.Fleet.SSH.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("pios: load ssh key: %w", err)
	}

	runner := &fleet.SSHRunner{
		User:        cfg.Fleet.SSH.User,
		Port:        cfg.Fleet.SSH.Port,
		Signer:      signer,
		DialTimeout: cfg.Fleet.SSH.DialTimeout,
	}

	transport, err := newTransport(cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("pios: bus transport: %w", err)
	}

	return &fleet.Dispatcher{Fleet: cfg.Fleet, Runner: runner, Transport: transport}, cfg, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyPath, err)
	}
	return signer, nil
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

// requestedUnits resolves the --units flag value; an empty slice should
// never reach fleet.ExpandUnits (the dispatcher would fan out to nobody),
// so an unset flag falls back to the broadcast sentinel.
func requestedUnits() []string {
	if len(unitsFlag) == 0 {
		return []string{fleetBroadcast}
	}
	return unitsFlag
}
