// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// Symbol is a ticker known to the candle store.
// LatestAt is the timestamp of its newest 1-minute bar; nil when the bar could not be read.
type Symbol struct {
	Code     string
	LatestAt *time.Time
}
