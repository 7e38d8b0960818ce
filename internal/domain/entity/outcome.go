package entity

import "fmt"

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeSkip    OutcomeKind = "skip"
	OutcomeFail    OutcomeKind = "fail"
)

// SendOutcome is the per-opportunity result seen by the send loop.
type SendOutcome struct {
	Kind              OutcomeKind
	Reason            string
	TradeID           TradeID
	PrivacyRestricted bool
}

// TradeNotification announces a trade reaching a notifiable status.
type TradeNotification struct {
	Trade  FinalizedTrade
	Status TradeStatus
}

// Key identifies the notification for exactly-once delivery.
func (n TradeNotification) Key() string {
	return fmt.Sprintf("%s-%s", n.Trade.ID, n.Status)
}
