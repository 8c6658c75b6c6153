package noodm

import (
	"time"

	"go.uber.org/zap"
)

// Uniqueness selects how unique fields are enforced under concurrency
type Uniqueness int

const (
	// UniquenessBestEffort checks uniqueness in the pre phase under a read
	// lock and applies the mutation under a separate write lock. Two inserts
	// whose pre phases interleave can both land. Sequential inserts are
	// always rejected.
	UniquenessBestEffort Uniqueness = iota

	// UniquenessStrict holds the collection write lock from the pre phase
	// through the mutation and enforces unique indexes when adding entries.
	// Hooks must not call back into the same collection.
	UniquenessStrict
)

// String returns the mode name
func (u Uniqueness) String() string {
	if u == UniquenessStrict {
		return "strict"
	}
	return "best-effort"
}

// Config holds database settings
type Config struct {
	// Uniqueness selects the enforcement mode of unique fields
	Uniqueness Uniqueness

	// AutosaveInterval saves the snapshot periodically when positive
	AutosaveInterval time.Duration
}

// DefaultConfig returns the default settings
func DefaultConfig() Config {
	return Config{
		Uniqueness: UniquenessBestEffort,
	}
}

// Option is a function that modifies Database configuration
type Option func(*Database)

// WithConfig replaces the whole configuration
func WithConfig(cfg Config) Option {
	return func(db *Database) {
		db.config = cfg
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(db *Database) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithUniqueness sets the uniqueness mode
func WithUniqueness(mode Uniqueness) Option {
	return func(db *Database) {
		db.config.Uniqueness = mode
	}
}

// WithAutosave saves the snapshot every interval until Close
func WithAutosave(interval time.Duration) Option {
	return func(db *Database) {
		db.config.AutosaveInterval = interval
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(db *Database) {
		db.timeFunc = fn
	}
}
