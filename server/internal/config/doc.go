// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort               port for the request layer, admin API and stream (default 8001)
//   - LogLevel               debug | info | warn | error (default info)
//   - Auth.Mode              "apikey" or "none"; guards /api/v1/* and /metrics
//   - Auth.KeyEnv            environment variable holding the expected API key
//   - Auth.Header            HTTP header name (default "x-api-key")
//   - Session.TokenLength    token length in hex characters (default 8)
//   - Session.TTL            idle timeout; 0 means sessions never expire (default)
//   - Leaderboard.Capacity   entries kept per offer (default 20)
//   - RateLimit              optional token bucket on stake submissions
//   - Stream.Interval        websocket broadcast period (default 5s)
//   - Alerts                 stake alert rules and webhooks
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads the file on change.
package config
