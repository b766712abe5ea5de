// Package auth provides authentication middleware for the highstakes server.
//
// APIKey(mode, header, key) returns HTTP middleware that validates the API key
// carried in the named request header. It guards the admin API and /metrics;
// the customer-facing endpoints authenticate by session key instead.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware responds 401 immediately.
package auth
