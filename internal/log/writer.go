package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"pioreactor.com/dosing/internal/config"
)

// MultiWriter fans out log bytes to every registered writer, mirroring the
// teacher's internal/log.MultiWriter.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0, 2)}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	var firstErr error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.writers = append(m.writers, w)
	return m
}

// AddFileAppender attaches a rotating file writer backed by lumberjack.
func (m *MultiWriter) AddFileAppender(cfg config.FileAppender) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return m
}
