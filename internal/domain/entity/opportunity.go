package entity

import (
	"strconv"
	"time"
)

// Opportunity is a counterparty matched to a template and not yet acted upon.
type Opportunity struct {
	TemplateID   string
	TargetUserID int64
	DedupKey     string
	DiscoveredAt time.Time

	GivingIDs    []int64
	ReceivingIDs []int64
}

// SentKey is the flat template/counterparty pair used for exact suppression.
func SentKey(templateID string, targetUserID int64) string {
	return templateID + "-" + strconv.FormatInt(targetUserID, 10)
}

func (o Opportunity) SentKey() string {
	return SentKey(o.TemplateID, o.TargetUserID)
}
