package observability

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Status glyphs written in front of each progress line.
const (
	glyphStart   = "-"
	glyphInfo    = "i"
	glyphFail    = "x"
	glyphSucceed = "+"
)

// ConsoleReporter prints progress lines to a terminal and mirrors each of
// them into the structured log. It satisfies schemas.StatusReporter.
type ConsoleReporter struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
	color  bool
}

// NewConsoleReporter creates a reporter writing to out. A nil logger
// disables the log mirror.
func NewConsoleReporter(out io.Writer, logger *zap.Logger, color bool) *ConsoleReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleReporter{out: out, logger: logger.Named("status"), color: color}
}

func (r *ConsoleReporter) Start(msg string) {
	r.write(glyphStart, colorCyan, msg)
	r.logger.Debug(msg)
}

func (r *ConsoleReporter) Info(msg string) {
	r.write(glyphInfo, colorBlue, msg)
	r.logger.Info(msg)
}

func (r *ConsoleReporter) Fail(msg string) {
	r.write(glyphFail, colorRed, msg)
	r.logger.Error(msg)
}

func (r *ConsoleReporter) Succeed(msg string) {
	r.write(glyphSucceed, colorGreen, msg)
	r.logger.Info(msg)
}

func (r *ConsoleReporter) write(glyph, color, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return
	}
	if r.color {
		fmt.Fprintf(r.out, "%s%s%s %s\n", color, glyph, colorReset, msg)
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", glyph, msg)
}

// NopReporter discards every status message.
type NopReporter struct{}

func (NopReporter) Start(string)   {}
func (NopReporter) Info(string)    {}
func (NopReporter) Fail(string)    {}
func (NopReporter) Succeed(string) {}
