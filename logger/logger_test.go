package logger_test

import (
	"context"
	"errors"
	"testing"

	liblog "github.com/nabbar/edged/logger"
)

func TestLogfNilFuncLogIsNoop(t *testing.T) {
	liblog.Logf(nil, liblog.InfoLevel, nil, "no logger configured")
}

func TestLogfNilLoggerIsNoop(t *testing.T) {
	var f liblog.FuncLog = func() liblog.Logger { return nil }
	liblog.Logf(f, liblog.WarnLevel, nil, "still no-op")
}

func TestLogfReachesLogger(t *testing.T) {
	lg := liblog.New(context.Background())
	f := func() liblog.Logger { return lg }

	liblog.Logf(f, liblog.InfoLevel, nil, "binding %s started", "b1")
	liblog.Logf(f, liblog.ErrorLevel, nil, "binding %s failed: %v", "b1", errors.New("boom"))
}

func TestLogErrorCtxfIgnoresNilError(t *testing.T) {
	lg := liblog.New(context.Background())
	f := func() liblog.Logger { return lg }

	liblog.LogErrorCtxf(context.Background(), f, "should not log", nil)
}

func TestLogErrorCtxfNotesCancelledContext(t *testing.T) {
	lg := liblog.New(context.Background())
	f := func() liblog.Logger { return lg }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	liblog.LogErrorCtxf(ctx, f, "shutdown in progress", errors.New("listener closed"))
}

func TestSetLevel(t *testing.T) {
	lg := liblog.New(context.Background())
	lg.SetLevel(liblog.DebugLevel)
	lg.Debug("debug is now enabled", nil)
}
