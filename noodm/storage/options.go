package storage

import (
	"time"

	"go.uber.org/zap"
)

// Option is a function that modifies file adapter configuration
type Option func(*fileAdapter)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(a *fileAdapter) {
		a.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(a *fileAdapter) {
		a.lockFactory = factory
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(a *fileAdapter) {
		a.timeFunc = fn
	}
}

// WithIDGenerator replaces the default slug id generator
func WithIDGenerator(gen IDGenerator) Option {
	return func(a *fileAdapter) {
		a.idGen = gen
	}
}

// WithLogger sets the logger used for write diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(a *fileAdapter) {
		a.logger = logger
	}
}
