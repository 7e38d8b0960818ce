package persistence

import (
	"cmp"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"trade_engine/internal/domain/entity"
)

// pendingSchema сохранённая запись об отправленном трейде. Старые записи
// могли хранить время в поле timestamp, а id пользователя строкой.
type pendingSchema struct {
	ID           entity.TradeID     `json:"id"`
	AutoTradeID  string             `json:"autoTradeId"`
	TargetUserID jsoniter.Number    `json:"targetUserId"`
	Created      *time.Time         `json:"created,omitempty"`
	Timestamp    *time.Time         `json:"timestamp,omitempty"`
	TradeName    string             `json:"tradeName"`
	Giving       []entity.Item      `json:"giving"`
	Receiving    []entity.Item      `json:"receiving"`
	RobuxGive    int64              `json:"robuxGive"`
	RobuxGet     int64              `json:"robuxGet"`
	Status       entity.TradeStatus `json:"status"`
}

func fromPending(p entity.PendingTrade) pendingSchema {
	created := p.CreatedAt
	return pendingSchema{
		ID:           p.ID,
		AutoTradeID:  p.TemplateID,
		TargetUserID: jsoniter.Number(strconv.FormatInt(p.TargetUserID, 10)),
		Created:      &created,
		TradeName:    p.TemplateName,
		Giving:       p.Giving,
		Receiving:    p.Receiving,
		RobuxGive:    p.RobuxGive,
		RobuxGet:     p.RobuxGet,
		Status:       p.Status,
	}
}

func (s pendingSchema) toDomain() entity.PendingTrade {
	uid, _ := strconv.ParseInt(string(s.TargetUserID), 10, 64)

	var created time.Time
	if t := cmp.Or(s.Created, s.Timestamp); t != nil {
		created = *t
	}

	return entity.PendingTrade{
		ID:           s.ID,
		TemplateID:   s.AutoTradeID,
		TargetUserID: uid,
		CreatedAt:    created,
		TemplateName: s.TradeName,
		Giving:       s.Giving,
		Receiving:    s.Receiving,
		RobuxGive:    s.RobuxGive,
		RobuxGet:     s.RobuxGet,
		Status:       cmp.Or(s.Status, entity.StatusOutbound),
	}
}

// finalizedSchema запись о трейде в терминальном статусе.
type finalizedSchema struct {
	pendingSchema

	RobloxStatus entity.TradeStatus `json:"robloxStatus,omitempty"`
	FinalizedAt  time.Time          `json:"finalizedAt"`
	UserDeclined bool               `json:"userDeclined,omitempty"`
}

func fromFinalized(f entity.FinalizedTrade) finalizedSchema {
	return finalizedSchema{
		pendingSchema: fromPending(f.PendingTrade),
		RobloxStatus:  f.PlatformStatus,
		FinalizedAt:   f.FinalizedAt,
		UserDeclined:  f.UserDeclined,
	}
}

func (s finalizedSchema) toDomain() entity.FinalizedTrade {
	p := s.pendingSchema.toDomain()
	return entity.FinalizedTrade{
		PendingTrade:   p,
		PlatformStatus: cmp.Or(s.RobloxStatus, p.Status),
		FinalizedAt:    s.FinalizedAt,
		UserDeclined:   s.UserDeclined,
	}
}

// exclusionSchema: id пользователей хранятся строками.
type exclusionSchema []string

func (s exclusionSchema) toDomain() map[int64]struct{} {
	out := make(map[int64]struct{}, len(s))
	for _, raw := range s {
		if uid, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out[uid] = struct{}{}
		}
	}
	return out
}
