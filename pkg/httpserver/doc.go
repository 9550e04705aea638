// Package httpserver wraps http.Server with environment-driven timeouts and
// context-driven graceful shutdown, so the entrypoint only decides what to
// serve, not how to stop.
package httpserver
