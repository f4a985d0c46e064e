// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// NoticePost caps a single postback/chargeback notice POST to an app.
const NoticePost = 5 * time.Second

// APIRequest caps one request to the solitude or marketplace APIs.
const APIRequest = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
