package lowpower

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logMu sync.RWMutex
	log   = zap.NewNop()
)

// Logger returns the package logger.
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

// SetLogger sets the package logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logMu.Lock()
	log = l
	logMu.Unlock()
}
