// Package timeouts defines the default durations shared by the memimg
// commands.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// LockWait caps how long a request waits for the image lock before it is
// answered as unavailable.
const LockWait = 5 * time.Second

// HealthInterval is how often the health reporter re-checks the image.
const HealthInterval = time.Second
