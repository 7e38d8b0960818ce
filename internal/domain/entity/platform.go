package entity

import (
	"strings"
	"time"
)

// Eligibility is the platform's answer to "can the account trade with this
// user". Status carries the platform reason when CanTrade is false.
type Eligibility struct {
	CanTrade bool
	Status   string
}

// InstanceRequest asks the instance resolver for concrete item instances of
// both sides of a trade.
type InstanceRequest struct {
	SenderUserID  int64
	SenderItemIDs []int64
	SenderRobux   int64

	TargetUserID  int64
	TargetItemIDs []int64
	TargetRobux   int64
}

// OutboundTrade is one entry of the outbound trades listing.
type OutboundTrade struct {
	ID        TradeID
	CreatedAt time.Time
	Status    string
	IsActive  *bool
}

// OutboundPage is one cursor page of the outbound listing.
type OutboundPage struct {
	Trades     []OutboundTrade
	NextCursor string
}

// TradeState is the raw status of a single trade lookup.
type TradeState struct {
	Status   string
	IsActive *bool
}

// Normalize maps a raw platform status onto a known TradeStatus. An open
// trade that is no longer active was declined by the counterparty. Unknown
// statuses are reported as not ok.
func (s TradeState) Normalize() (TradeStatus, bool) {
	inactive := s.IsActive != nil && !*s.IsActive

	status := TradeStatus(strings.ToLower(strings.TrimSpace(s.Status)))
	switch status {
	case "":
		if inactive {
			return StatusDeclined, true
		}
		return "", false
	case StatusOpen:
		if inactive {
			return StatusDeclined, true
		}
		return StatusOpen, true
	case StatusCompleted, StatusDeclined, StatusCountered, StatusAccepted, StatusExpired:
		return status, true
	default:
		return "", false
	}
}
