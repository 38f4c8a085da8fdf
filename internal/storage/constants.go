package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 10
	defaultMinConns          int32         = 1
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// Advisory lock ids.
const (
	migrationLockID = 1000
	linkCacheLockID = 1001
)

// Cache defaults, matching the file backend.
const (
	defaultCacheTTL        = 7 * 24 * time.Hour
	defaultCacheMaxEntries = 1000
)
