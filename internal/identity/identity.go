// Package identity carries the unit/experiment pair that roots every bus
// topic, and the helpers for building and matching topic strings.
package identity

import "strings"

// Broadcast is the sentinel unit name that addresses every node in an
// experiment.
const Broadcast = "$broadcast"

// Identity is the host identity threaded explicitly to every job — never a
// process-wide singleton (spec §9 "global mutable identity").
type Identity struct {
	Unit       string
	Experiment string
}

// Topic builds "pioreactor/<unit>/<experiment>/<job>/<leaf...>".
func (id Identity) Topic(job string, leaf ...string) string {
	parts := append([]string{"pioreactor", id.Unit, id.Experiment, job}, leaf...)
	return strings.Join(parts, "/")
}

// BroadcastTopic builds the same topic rooted at the $broadcast sentinel,
// used when publishing commands meant for every unit in the experiment.
func (id Identity) BroadcastTopic(job string, leaf ...string) string {
	parts := append([]string{"pioreactor", Broadcast, id.Experiment, job}, leaf...)
	return strings.Join(parts, "/")
}

// Match reports whether topic matches pattern, where pattern may use MQTT-style
// wildcards: "+" matches exactly one path segment, "#" matches the remainder
// of the topic (must be the last segment).
func Match(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")

	for i, p := range pSegs {
		if p == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}
