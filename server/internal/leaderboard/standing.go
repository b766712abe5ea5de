package leaderboard

// Standing is an entry with its 1-based position, shaped for JSON output.
type Standing struct {
	Rank       int `json:"rank"`
	CustomerID int `json:"customer_id"`
	Stake      int `json:"stake"`
}

// Standings ranks entries, which must already be in board order.
func Standings(entries []Entry) []Standing {
	out := make([]Standing, len(entries))
	for i, e := range entries {
		out[i] = Standing{Rank: i + 1, CustomerID: e.CustomerID, Stake: e.Stake}
	}
	return out
}
