package entity

import "time"

type TradeStatus string

const (
	StatusOutbound  TradeStatus = "outbound"
	StatusOpen      TradeStatus = "open"
	StatusCompleted TradeStatus = "completed"
	StatusAccepted  TradeStatus = "accepted"
	StatusDeclined  TradeStatus = "declined"
	StatusCountered TradeStatus = "countered"
	StatusExpired   TradeStatus = "expired"
)

// IsTerminal reports whether the status ends the life of a pending trade.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusAccepted, StatusDeclined, StatusCountered, StatusExpired:
		return true
	default:
		return false
	}
}

// Notifiable reports whether a transition into s is announced to the user.
func (s TradeStatus) Notifiable() bool {
	switch s {
	case StatusCompleted, StatusAccepted, StatusCountered, StatusDeclined:
		return true
	default:
		return false
	}
}

type PendingTrade struct {
	ID           TradeID     `json:"id"`
	TemplateID   string      `json:"autoTradeId"`
	TargetUserID int64       `json:"targetUserId"`
	CreatedAt    time.Time   `json:"created"`
	TemplateName string      `json:"tradeName"`
	Giving       []Item      `json:"giving"`
	Receiving    []Item      `json:"receiving"`
	RobuxGive    int64       `json:"robuxGive"`
	RobuxGet     int64       `json:"robuxGet"`
	Status       TradeStatus `json:"status"`
}

type FinalizedTrade struct {
	PendingTrade

	PlatformStatus TradeStatus `json:"robloxStatus,omitempty"`
	FinalizedAt    time.Time   `json:"finalizedAt"`
	UserDeclined   bool        `json:"userDeclined,omitempty"`
}

// Finalize turns a pending trade into its terminal record.
func (p PendingTrade) Finalize(status TradeStatus, at time.Time) FinalizedTrade {
	p.Status = status
	if p.Giving == nil {
		p.Giving = []Item{}
	}
	if p.Receiving == nil {
		p.Receiving = []Item{}
	}

	return FinalizedTrade{
		PendingTrade:   p,
		PlatformStatus: status,
		FinalizedAt:    at,
	}
}
