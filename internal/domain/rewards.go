package domain

import "time"

// Rewards is a user's star and coin balance. Balances only grow.
type Rewards struct {
	UserID      string    `json:"user_id"`
	Stars       int       `json:"stars"`
	Coins       int       `json:"coins"`
	LastUpdated time.Time `json:"last_updated"`
}
