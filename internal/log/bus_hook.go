package log

import "github.com/sirupsen/logrus"

// BusPublisher is the narrow seam the bus hook needs — implemented by
// internal/bus.PubClient. Kept as a callback-shaped interface (not a direct
// import of internal/bus) so internal/log has no dependency on the bus.
type BusPublisher interface {
	PublishLog(level logrus.Level, message string) error
}

// BusHook mirrors Info, Warn and Error log records onto the bus, exactly as the
// teacher wires a second appender (Kafka) alongside the local MultiWriter —
// here the second sink is the job's own "…/log" and "…/error_log" topics.
type BusHook struct {
	Publisher BusPublisher
}

func (h *BusHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (h *BusHook) Fire(entry *logrus.Entry) error {
	if h.Publisher == nil {
		return nil
	}
	return h.Publisher.PublishLog(entry.Level, entry.Message)
}
