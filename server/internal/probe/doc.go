// Package probe reads a running highstakes server's /metrics endpoint and
// condenses it into a Report. The status command of highstakes-server uses it
// to check a live instance from the shell.
//
// Admin API key authentication is injected by a RoundTripper so callers pass a
// plain base URL.
package probe
