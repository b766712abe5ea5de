// Package ws implements the live leaderboard stream for the highstakes server.
//
// Hub manages connected clients, each subscribed to a single offer, and pushes
// that offer's leaderboard to them on a configurable interval (default 5s) and
// whenever Notify reports an accepted stake on the offer.
//
// New(boards, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket for the offer in the
// {offerID} route parameter and sends its leaderboard immediately.
//
// Message format sent to clients:
//
//	{
//	  "event":        "leaderboard",
//	  "offer_id":     100,
//	  "standings":    [{"rank": 1, "customer_id": 2, "stake": 80}, ...],
//	  "generated_at": "2026-01-02T15:04:05Z"
//	}
//
// Browser connections are checked against the allowed origins passed to New
// (server.stream.allowed_origins); with none configured only same-host pages
// may connect. The endpoint is mounted at /ws/offers/{offerID}.
package ws
