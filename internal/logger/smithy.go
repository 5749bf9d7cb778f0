package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/smithy-go/logging"
)

// Smithy adapts l to the smithy-go logger used by the AWS event stream
// decoder. Debug classifications log at slog Debug, everything else at Warn.
func Smithy(l *slog.Logger) logging.Logger {
	return smithyLogger{l: l}
}

type smithyLogger struct {
	l *slog.Logger
}

func (s smithyLogger) Logf(classification logging.Classification, format string, v ...any) {
	level := slog.LevelWarn
	if classification == logging.Debug {
		level = slog.LevelDebug
	}
	s.l.Log(context.Background(), level, fmt.Sprintf(format, v...), "source", "eventstream")
}
