// Package api implements the HTTP surface of the highstakes server.
//
// New(sessions, boards, opts) returns an http.Handler that serves the
// customer-facing endpoints:
//
//	GET  /{customerID}/session               plain-text session token (get-or-create)
//	POST /{offerID}/stake?sessionkey=KEY     body is the integer stake; 200 with empty body
//	GET  /{offerID}/highstakes               plain-text "customer=stake" list, comma-separated,
//	                                          highest first; empty body when there are none
//
// and the admin surface, guarded by Options.AdminAuth:
//
//	GET /api/v1/health                       offer ids and counts of offers, sessions, stream clients
//	GET /api/v1/offers/{offerID}/leaderboard  ranked JSON leaderboard
//	GET /api/v1/alerts                       firing and recently resolved stake alerts
//	GET /metrics                             Prometheus exposition (when Options.Metrics is set)
//
// The live stream is mounted at /ws/offers/{offerID} when Options.Stream is set.
//
// Errors are JSON bodies of the form {"error": "..."}: 400 for malformed ids,
// stakes or a missing session key, 401 for an unknown session key, 429 when the
// stake rate limit is exceeded. Routing uses chi.
package api
