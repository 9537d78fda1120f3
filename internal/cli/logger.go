package cli

import "go.uber.org/zap"

// bridgeLogger wraps zap for verbose debug output.
type bridgeLogger struct {
	sugared *zap.SugaredLogger
	zap     *zap.Logger
}

func newBridgeLogger(globals *Globals) *bridgeLogger {
	if globals == nil || !globals.Verbose {
		return &bridgeLogger{zap: zap.NewNop()}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	logger, _ := cfg.Build()
	return &bridgeLogger{
		sugared: logger.Sugar(),
		zap:     logger,
	}
}

func (l *bridgeLogger) Debug(format string, args ...interface{}) {
	if l.sugared == nil {
		return
	}
	l.sugared.Debugf(format, args...)
}

// Zap exposes the structured logger for the session layer.
func (l *bridgeLogger) Zap() *zap.Logger {
	if l.zap == nil {
		return zap.NewNop()
	}
	return l.zap
}
