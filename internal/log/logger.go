// Package log implements structured logging using logrus, following the
// teacher's internal/log package: a pattern-based formatter, a MultiWriter
// fan-out (console + rotating file), and a bus hook that mirrors log records
// onto the pub/sub bus for remote aggregation.
package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"pioreactor.com/dosing/internal/config"
)

// New builds a job-scoped logger carrying unit/experiment/job_name fields,
// the same trio the teacher attaches as task_id/agent_id.
func New(cfg config.LogConfig, unit, experiment, jobName string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout) // overwritten below once formatter/writer are set

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&patternFormatter{
		pattern: defaultString(cfg.Pattern, "%time [%level] %field %msg"),
		time:    defaultString(cfg.Time, "2006-01-02T15:04:05.000Z07:00"),
	})

	mw := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		mw = mw.AddFileAppender(cfg.File)
	}
	logger.SetOutput(mw)

	return logger.WithFields(logrus.Fields{
		"unit":       unit,
		"experiment": experiment,
		"job_name":   jobName,
	})
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
