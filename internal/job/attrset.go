package job

import (
	"context"
	"strings"

	"pioreactor.com/dosing/internal/bus"
)

// handleSet is the general passive listener registered in enterInit,
// implementing the attribute-set protocol of spec §4.4:
//  1. parse the trailing topic segment as attr, stripping a leading "$";
//  2. unknown attr is silently ignored;
//  3. "state" is special-cased to set_state;
//  4. otherwise the setting's Set hook is invoked, and the assignment
//     implicitly republishes the value retained.
func (j *Job) handleSet(msg bus.Message) {
	segs := strings.Split(msg.Topic, "/")
	if len(segs) < 2 || segs[len(segs)-1] != "set" {
		return
	}
	attr := strings.TrimPrefix(segs[len(segs)-2], "$")
	raw := string(msg.Payload)

	if attr == "state" {
		j.handleSetState(raw)
		return
	}

	j.mu.Lock()
	setting, ok := j.Settings[attr]
	j.mu.Unlock()
	if !ok {
		// "If attr is not in editable_settings, silently ignore."
		return
	}
	if setting.Set == nil {
		// No setter hook and no reflective coercion path (spec §9's "never
		// runtime reflection" decision) — this setting is declared but not
		// writable from this build.
		j.Log.Warnf("set %s: no setter registered for this setting", attr)
		return
	}

	if err := setting.Set(raw); err != nil {
		j.Log.Errorf("set %s=%q: %v", attr, raw, err)
		return
	}

	value := raw
	if setting.Get != nil {
		value = setting.Get()
	}
	if err := j.Pub.PublishRetainedSetting(attr, value); err != nil {
		j.Log.Errorf("publish retained %s: %v", attr, err)
	}
}

func (j *Job) handleSetState(raw string) {
	to := State(raw)
	switch to {
	case Init, Ready, Sleeping, Disconnected, Lost:
	default:
		j.Log.Errorf("set state: %q is not a valid lifecycle state", raw)
		return
	}
	if to == Lost {
		// "lost" is broker-originated only and never assigned by the job
		// itself (spec §3) — a client writing …/state/set=lost is refused.
		j.Log.Errorf("set state: %q cannot be set directly", raw)
		return
	}
	if err := j.SetState(context.Background(), to); err != nil {
		j.Log.Errorf("set state: %v", err)
	}
}
