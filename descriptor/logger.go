package descriptor

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the descriptor package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the descriptor package's logger.
// This must be called before any classes are registered.
func SetLogger(l *zap.Logger) {
	logger = l
}

func zapClass(id string) zap.Field { return zap.String("class", id) }

func zapOrigin(o Origin) zap.Field { return zap.Stringer("origin", o) }

func zapMRO(mro []*Class) zap.Field { return zap.Strings("mro", mroNames(mro)) }
