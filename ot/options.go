// Package ot implements the OT server commit pipeline (C7, spec §4.7)
// and the client acknowledge/rebase pipeline (C8, spec §4.8).
package ot

import (
	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/version"
)

// Options configures CommitChanges (spec §6 configuration options).
type Options struct {
	// SessionTimeoutMillis bounds both the offline/batch-path detection
	// and version session-splitting. Defaults to 30 minutes.
	SessionTimeoutMillis int64
	// MaxPayloadBytes caps a collapsed offline-branch change's size.
	MaxPayloadBytes int
	// HistoricalImport relaxes baseRev consistency checks and preserves
	// incoming CreatedAt timestamps instead of clamping to server time.
	HistoricalImport bool
	// ForceCommit bypasses the transform-probe no-op/broken-transform
	// drop: a change that fails to apply during transformation is
	// persisted as-is instead of being dropped.
	ForceCommit bool
	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

// DefaultOptions returns the spec's defaults.
func DefaultOptions() Options {
	return Options{SessionTimeoutMillis: version.DefaultSessionTimeoutMillis}
}

func (o Options) timeout() int64 {
	if o.SessionTimeoutMillis > 0 {
		return o.SessionTimeoutMillis
	}
	return version.DefaultSessionTimeoutMillis
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) versionOptions() version.Options {
	return version.Options{SessionTimeoutMillis: o.timeout(), MaxPayloadBytes: o.MaxPayloadBytes}
}
