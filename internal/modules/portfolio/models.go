// Package portfolio tracks the current allocation: the weight held per
// ticker. These weights are the "old" side of every turnover calculation.
package portfolio

import "time"

// Holding is one position, expressed as a fraction of portfolio value.
type Holding struct {
	Ticker    string    `json:"ticker"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}
