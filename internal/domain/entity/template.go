package entity

import "time"

type CompletionStatus string

const (
	CompletionIncomplete CompletionStatus = "incomplete"
	CompletionComplete   CompletionStatus = "complete"
)

// Item is one side entry of a template. ID may be zero when only the display
// name is known.
type Item struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Value int64  `json:"value,omitempty"`
	RAP   int64  `json:"rap,omitempty"`
}

// TradeTemplate is a recurring trade offer definition owned by the account.
type TradeTemplate struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	GivingItems    []Item           `json:"giving"`
	ReceivingItems []Item           `json:"receiving"`
	RobuxGive      int64            `json:"robuxGive"`
	RobuxGet       int64            `json:"robuxGet"`
	DailyGoal      int              `json:"maxTradesPerDay"`
	SentToday      int              `json:"tradesExecutedToday"`
	SentOn         string           `json:"sentOn,omitempty"`
	Status         CompletionStatus `json:"status,omitempty"`
	CreatedAt      time.Time        `json:"created"`
	LastExecutedAt *time.Time       `json:"lastExecuted,omitempty"`
}

const dayLayout = "2006-01-02"

// AlreadySentToday returns the number of sends recorded on the day of now.
func (t TradeTemplate) AlreadySentToday(now time.Time) int {
	if t.SentOn != now.Format(dayLayout) {
		return 0
	}
	return t.SentToday
}

// Remaining returns max(0, dailyGoal - alreadySentToday).
func (t TradeTemplate) Remaining(now time.Time) int {
	return max(0, t.DailyGoal-t.AlreadySentToday(now))
}

// RecordSend bumps today's counter and refreshes the completion status.
func (t *TradeTemplate) RecordSend(now time.Time) {
	t.SentToday = t.AlreadySentToday(now) + 1
	t.SentOn = now.Format(dayLayout)
	t.LastExecutedAt = &now

	if t.SentToday >= t.DailyGoal {
		t.Status = CompletionComplete
	} else {
		t.Status = CompletionIncomplete
	}
}
