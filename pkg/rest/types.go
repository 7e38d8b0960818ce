// Модели control API. Поля повторяют JSON, который видит оператор.
package rest

import "time"

type Item struct {
	ID    int64  `json:"id,omitempty" validate:"gte=0"`
	Name  string `json:"name" validate:"required_without=ID,max=200"`
	Value int64  `json:"value,omitempty" validate:"gte=0"`
	RAP   int64  `json:"rap,omitempty" validate:"gte=0"`
}

// Template Шаблон трейда. ID пустой при создании.
type Template struct {
	ID             string     `json:"id"`
	Name           string     `json:"name" validate:"required,max=200"`
	GivingItems    []Item     `json:"giving" validate:"max=4,dive"`
	ReceivingItems []Item     `json:"receiving" validate:"required,min=1,max=4,dive"`
	RobuxGive      int64      `json:"robuxGive" validate:"gte=0"`
	RobuxGet       int64      `json:"robuxGet" validate:"gte=0"`
	DailyGoal      int        `json:"maxTradesPerDay" validate:"gte=1"`
	SentToday      int        `json:"tradesExecutedToday"`
	Status         string     `json:"status,omitempty"`
	CreatedAt      time.Time  `json:"created"`
	LastExecutedAt *time.Time `json:"lastExecuted,omitempty"`
}

type PendingTrade struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"autoTradeId"`
	TemplateName string    `json:"tradeName"`
	TargetUserID int64     `json:"targetUserId"`
	Giving       []Item    `json:"giving"`
	Receiving    []Item    `json:"receiving"`
	RobuxGive    int64     `json:"robuxGive"`
	RobuxGet     int64     `json:"robuxGet"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created"`
}

type FinalizedTrade struct {
	PendingTrade

	FinalizedAt  time.Time `json:"finalizedAt"`
	UserDeclined bool      `json:"userDeclined,omitempty"`
}

// SendAllRequest Пустой TemplateID запускает отправку по всем шаблонам.
type SendAllRequest struct {
	TemplateID string `json:"templateId" validate:"max=64"`
}

type SendAllResponse struct {
	Started bool `json:"started"`
}

type Status struct {
	Sending        bool `json:"sending"`
	Declining      bool `json:"declining"`
	PendingTrades  int  `json:"pendingTrades"`
	Templates      int  `json:"templates"`
	SecretEnrolled bool `json:"secretEnrolled"`
	PasswordCached bool `json:"passwordCached"`
}

type ReconcileResult struct {
	Pending     int  `json:"pending"`
	StillOpen   int  `json:"stillOpen"`
	Checked     int  `json:"checked"`
	Finalized   int  `json:"finalized"`
	Notified    int  `json:"notified"`
	RateLimited bool `json:"rateLimited"`
}

type DeclineResult struct {
	Total    int  `json:"total"`
	Declined int  `json:"declined"`
	Failed   int  `json:"failed"`
	Stopped  bool `json:"stopped"`
}

type Exclusions struct {
	UserIDs []int64 `json:"userIds"`
}

type PasswordRequest struct {
	Password string `json:"password" validate:"required,min=1,max=256"`
}

type EnrollRequest struct {
	Seed     string `json:"seed" validate:"required,min=16,max=128"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

// Error Модель ошибок
type Error struct {
	// Code Код ошибки
	Code ErrorCode `json:"code"`

	// Message Сообщение об ошибке (для отображения в UI в будущем)
	Message string `json:"message"`

	SupportID string `json:"supportId"`
}

// ErrorCode Код ошибки
type ErrorCode string
