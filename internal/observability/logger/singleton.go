package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

// Init builds the process logger from cfg. Only the first successful call has
// effect; later calls are ignored so tests and binaries can both call it.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return nil
	}
	l, err := New(cfg)
	if err != nil {
		return err
	}
	instance = l
	return nil
}

// Set replaces the process logger. Used by tests (zap.NewNop) and by cmd wiring
// when the logger is built elsewhere.
func Set(l *zap.Logger) {
	mu.Lock()
	instance = l
	mu.Unlock()
}

// L returns the process logger, creating a dev/info one on first use.
func L() *zap.Logger {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{Env: "dev", Level: "info"})
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return zap.NewNop()
	}
	return instance
}

// Named returns the process logger with a component name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered entries. Call it deferred in main.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
