package server

import (
	"time"

	"github.com/samber/lo"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/worker"
	"trade_engine/pkg/rest"
)

func newRESTItem(item entity.Item) rest.Item {
	return rest.Item{
		ID:    item.ID,
		Name:  item.Name,
		Value: item.Value,
		RAP:   item.RAP,
	}
}

func newDomainItem(item rest.Item) entity.Item {
	return entity.Item{
		ID:    item.ID,
		Name:  item.Name,
		Value: item.Value,
		RAP:   item.RAP,
	}
}

func newRESTItems(items []entity.Item) []rest.Item {
	return lo.Map(items, func(item entity.Item, _ int) rest.Item { return newRESTItem(item) })
}

func newDomainItems(items []rest.Item) []entity.Item {
	return lo.Map(items, func(item rest.Item, _ int) entity.Item { return newDomainItem(item) })
}

func newRESTTemplate(tpl entity.TradeTemplate, now time.Time) rest.Template {
	return rest.Template{
		ID:             tpl.ID,
		Name:           tpl.Name,
		GivingItems:    newRESTItems(tpl.GivingItems),
		ReceivingItems: newRESTItems(tpl.ReceivingItems),
		RobuxGive:      tpl.RobuxGive,
		RobuxGet:       tpl.RobuxGet,
		DailyGoal:      tpl.DailyGoal,
		SentToday:      tpl.AlreadySentToday(now),
		Status:         string(tpl.Status),
		CreatedAt:      tpl.CreatedAt,
		LastExecutedAt: tpl.LastExecutedAt,
	}
}

// newDomainTemplate переносит только редактируемые поля. Счётчики и даты
// остаются за репозиторием.
func newDomainTemplate(tpl rest.Template) entity.TradeTemplate {
	return entity.TradeTemplate{
		ID:             tpl.ID,
		Name:           tpl.Name,
		GivingItems:    newDomainItems(tpl.GivingItems),
		ReceivingItems: newDomainItems(tpl.ReceivingItems),
		RobuxGive:      tpl.RobuxGive,
		RobuxGet:       tpl.RobuxGet,
		DailyGoal:      tpl.DailyGoal,
	}
}

func newRESTPendingTrade(t entity.PendingTrade) rest.PendingTrade {
	return rest.PendingTrade{
		ID:           t.ID.String(),
		TemplateID:   t.TemplateID,
		TemplateName: t.TemplateName,
		TargetUserID: t.TargetUserID,
		Giving:       newRESTItems(t.Giving),
		Receiving:    newRESTItems(t.Receiving),
		RobuxGive:    t.RobuxGive,
		RobuxGet:     t.RobuxGet,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt,
	}
}

func newRESTFinalizedTrade(t entity.FinalizedTrade) rest.FinalizedTrade {
	return rest.FinalizedTrade{
		PendingTrade: newRESTPendingTrade(t.PendingTrade),
		FinalizedAt:  t.FinalizedAt,
		UserDeclined: t.UserDeclined,
	}
}

func newRESTReconcileResult(res worker.ReconcileResult) rest.ReconcileResult {
	return rest.ReconcileResult{
		Pending:     res.Pending,
		StillOpen:   res.StillOpen,
		Checked:     res.Checked,
		Finalized:   res.Finalized,
		Notified:    res.Notified,
		RateLimited: res.RateLimited,
	}
}

func newRESTDeclineResult(res worker.DeclineResult) rest.DeclineResult {
	return rest.DeclineResult{
		Total:    res.Total,
		Declined: res.Declined,
		Failed:   res.Failed,
		Stopped:  res.Stopped,
	}
}
