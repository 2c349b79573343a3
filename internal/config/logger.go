package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from c, rotating through
// lumberjack.v2 when a log file is configured, matching the teacher's
// pattern of handing [slogutil.New] an already-rotating [io.Writer] rather
// than teaching the logging package itself about file rotation.
func NewLogger(c *LoggingConfig) (logger *slog.Logger) {
	var out io.Writer = os.Stderr
	if c.File != "" {
		out = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    int(c.MaxSize.MBytes()),
			MaxBackups: c.MaxBackups,
			Compress:   true,
		}
	}

	format := slogutil.FormatDefault
	if c.JSON {
		format = slogutil.FormatJSON
	}

	return slogutil.New(&slogutil.Config{
		Level:        slogLevel(c.Level),
		Output:       out,
		Format:       format,
		AddTimestamp: true,
	})
}
