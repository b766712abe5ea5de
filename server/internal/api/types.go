package api

import "github.com/highstakes/highstakes/server/internal/leaderboard"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Offers        int    `json:"offers"`
	OfferIDs      []int  `json:"offer_ids"`
	Sessions      int    `json:"sessions"`
	StreamClients int    `json:"stream_clients"`
	Capacity      int    `json:"leaderboard_capacity"`
	SessionTTL    string `json:"session_ttl"` // "0s" when sessions never expire
}

// LeaderboardResponse is the payload for GET /api/v1/offers/{offerID}/leaderboard.
type LeaderboardResponse struct {
	OfferID     int                    `json:"offer_id"`
	Capacity    int                    `json:"capacity"`
	Standings   []leaderboard.Standing `json:"standings"`
	GeneratedAt string                 `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
