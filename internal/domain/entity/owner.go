package entity

import "time"

// CandidateOwner is a platform user holding one of the requested items.
type CandidateOwner struct {
	UserID     int64
	OwnedSince time.Time
	LastOnline time.Time
}

// OwnerQuery narrows the common-owners lookup. Zero values disable a bound.
type OwnerQuery struct {
	ItemIDs        []int64
	MaxOwnerDays   int
	LastOnlineDays int
}
