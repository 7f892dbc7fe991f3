// Package fleet implements the leader-only fleet operations of spec §4.8:
// run, kill, update-settings and sync-configs, fanned out over a bounded
// worker pool with per-unit error aggregation.
package fleet

import (
	"pioreactor.com/dosing/internal/config"
	"pioreactor.com/dosing/internal/identity"
)

// UniversalIdentifier expands to every active worker in inventory (spec
// §4.8 "the $broadcast identifier expanded from inventory"), grounded on
// the original's UNIVERSAL_IDENTIFIER sentinel in pios.py.
const UniversalIdentifier = identity.Broadcast

// ExpandUnits resolves requested unit names against the fleet config's
// inventory. If requested is exactly {UniversalIdentifier}, every active
// worker in the inventory is substituted (spec §4.8).
func ExpandUnits(fleetCfg config.FleetConfig, requested []string) []string {
	if len(requested) == 1 && requested[0] == UniversalIdentifier {
		units := make([]string, len(fleetCfg.Units))
		copy(units, fleetCfg.Units)
		return units
	}
	return requested
}
