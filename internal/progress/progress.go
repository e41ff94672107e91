// Package progress defines the sink stages report through while iterating
// frames, cells, and fields of view.
package progress

import "log/slog"

// Sink receives progress updates as (current, total, message) triples.
// Implementations must be safe for concurrent use; multiple worker ranges
// report through the same sink.
type Sink interface {
	Report(current, total int, message string)
}

// Func adapts a plain function to the Sink interface.
type Func func(current, total int, message string)

// Report implements Sink.
func (f Func) Report(current, total int, message string) {
	if f != nil {
		f(current, total, message)
	}
}

type nopSink struct{}

func (nopSink) Report(int, int, string) {}

// Nop returns a sink that discards all updates.
func Nop() Sink {
	return nopSink{}
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that writes updates to the given logger at
// debug level.
func NewLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Report(current, total int, message string) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("progress",
		slog.Int("current", current),
		slog.Int("total", total),
		slog.String("message", message),
	)
}
