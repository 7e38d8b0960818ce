package worker

import (
	"context"
	"errors"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/ledger"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

// Причины неуспеха отправки одной возможности.
const (
	ReasonCancelled             = "cancelled"
	ReasonCannotTrade           = "cannot_trade"
	ReasonMissingItemIDs        = "missing_item_ids"
	ReasonMissingInstances      = "missing_instances"
	ReasonInstanceCountMismatch = "instance_count_mismatch"
	ReasonChallengeRequired     = "challenge_required"
	ReasonPrivacyRestricted     = "privacy_restricted"
	ReasonRateLimited           = "rate_limited"
	ReasonSendFailed            = "send_failed"
)

func skip(reason string) entity.SendOutcome {
	return entity.SendOutcome{Kind: entity.OutcomeSkip, Reason: reason}
}

func fail(reason string) entity.SendOutcome {
	return entity.SendOutcome{Kind: entity.OutcomeFail, Reason: reason}
}

// sendOne проводит одну возможность через все шаги: проверка возможности
// трейда, id предметов, инстансы, отправка. Ошибки не пробрасываются наружу,
// а превращаются в исход.
func (w *SendAll) sendOne(ctx context.Context, rc *RunContext, opp entity.Opportunity) entity.SendOutcome {
	if ctx.Err() != nil {
		return skip(ReasonCancelled)
	}

	tpl, ok := rc.Templates[opp.TemplateID]
	if !ok {
		return fail(ReasonMissingItemIDs)
	}

	eligibility, err := w.platform.CheckEligibility(ctx, opp.TargetUserID)
	switch {
	case ctx.Err() != nil:
		return skip(ReasonCancelled)
	case err != nil:
		logger(ctx).Warn("Eligibility check failed, assuming tradable",
			logx.FieldTargetUserID, opp.TargetUserID, logx.Error(err))
	case !eligibility.CanTrade:
		return skip(ReasonCannotTrade)
	}

	if len(opp.GivingIDs) != len(tpl.GivingItems) || len(opp.ReceivingIDs) != len(tpl.ReceivingItems) {
		return fail(ReasonMissingItemIDs)
	}

	self := w.platform.UserID()

	instances, err := w.platform.ResolveInstances(ctx, entity.InstanceRequest{
		SenderUserID:  self,
		SenderItemIDs: opp.GivingIDs,
		SenderRobux:   tpl.RobuxGive,
		TargetUserID:  opp.TargetUserID,
		TargetItemIDs: opp.ReceivingIDs,
		TargetRobux:   tpl.RobuxGet,
	})
	if err != nil {
		if ctx.Err() != nil {
			return skip(ReasonCancelled)
		}
		logger(ctx).Warn("Instance resolution failed", logx.FieldTargetUserID, opp.TargetUserID, logx.Error(err))
		return fail(ReasonMissingInstances)
	}

	senderInstances, okSender := instances[self]
	targetInstances, okTarget := instances[opp.TargetUserID]
	if !okSender || !okTarget {
		return fail(ReasonMissingInstances)
	}

	senderInstances = truncate(senderInstances, len(opp.GivingIDs))
	targetInstances = truncate(targetInstances, len(opp.ReceivingIDs))
	if len(senderInstances) < len(opp.GivingIDs) || len(targetInstances) < len(opp.ReceivingIDs) {
		return fail(ReasonInstanceCountMismatch)
	}

	offer := entity.TradeOffer{
		SenderUserID:    self,
		SenderRobux:     tpl.RobuxGive,
		SenderInstances: senderInstances,
		TargetUserID:    opp.TargetUserID,
		TargetRobux:     tpl.RobuxGet,
		TargetInstances: targetInstances,
	}

	if ctx.Err() != nil {
		return skip(ReasonCancelled)
	}

	tradeID, err := w.submit(ctx, rc, opp.TemplateID, offer)
	if err != nil {
		return w.classify(ctx, rc, opp, err)
	}

	// Трейд уже отправлен: учёт доводим до конца даже при отмене.
	w.commit(context.WithoutCancel(ctx), rc, tpl, opp, tradeID)

	return entity.SendOutcome{Kind: entity.OutcomeSuccess, TradeID: tradeID}
}

// submit отправляет через автоподтверждение, а при отказе от него обычной
// отправкой.
func (w *SendAll) submit(ctx context.Context, rc *RunContext, templateID string, offer entity.TradeOffer) (entity.TradeID, error) {
	res, err := w.confirmer.Send(ctx, templateID, offer)
	if err != nil {
		return entity.TradeID{}, err
	}
	if !res.UseFallback {
		return res.TradeID, nil
	}

	tradeID, err := w.platform.SubmitTrade(ctx, offer)
	if err == nil {
		return tradeID, nil
	}

	if _, isChallenge := domain.AsChallenge(err); isChallenge && !rc.challengeAlerted && !res.Expired {
		rc.challengeAlerted = true
		w.alert(ctx, "2FA Required",
			"Trades require 2FA verification. Set your authenticator secret and password "+
				"to confirm trades automatically.")
	}

	return entity.TradeID{}, err
}

func (w *SendAll) classify(ctx context.Context, rc *RunContext, opp entity.Opportunity, err error) entity.SendOutcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return skip(ReasonCancelled)
	}

	logger(ctx).Warn("Trade send failed",
		logx.FieldTemplateID, opp.TemplateID,
		logx.FieldTargetUserID, opp.TargetUserID,
		logx.Error(err),
	)

	switch {
	case domain.HasCode(err, errcodes.PrivacyRestricted):
		if w.privacyPermanent {
			if err := w.exclusions.Add(ctx, opp.TargetUserID); err != nil {
				logger(ctx).Error("Failed to persist privacy exclusion", logx.Error(err))
			}
		}
		out := fail(ReasonPrivacyRestricted)
		out.PrivacyRestricted = true
		return out
	case errors.As(err, new(*domain.ChallengeError)):
		return fail(ReasonChallengeRequired)
	case errors.As(err, new(*domain.RateLimitError)):
		return fail(ReasonRateLimited)
	}

	return fail(ReasonSendFailed)
}

// commit записывает успешную отправку: комбинацию в журнал, трейд в pending,
// пару шаблон-контрагент в отправленные и дневной счётчик шаблона.
func (w *SendAll) commit(
	ctx context.Context,
	rc *RunContext,
	tpl entity.TradeTemplate,
	opp entity.Opportunity,
	tradeID entity.TradeID,
) {
	combo := ledger.Combo{
		TargetUserID: opp.TargetUserID,
		Giving:       opp.GivingIDs,
		Receiving:    opp.ReceivingIDs,
		RobuxGive:    tpl.RobuxGive,
		RobuxGet:     tpl.RobuxGet,
	}
	if err := w.ledger.Record(ctx, combo); err != nil {
		logger(ctx).Error("Failed to record combo", logx.Error(err))
	}

	pending := entity.PendingTrade{
		ID:           tradeID,
		TemplateID:   tpl.ID,
		TargetUserID: opp.TargetUserID,
		CreatedAt:    w.clock(),
		TemplateName: tpl.Name,
		Giving:       namedItems(tpl.GivingItems, rc),
		Receiving:    namedItems(tpl.ReceivingItems, rc),
		RobuxGive:    tpl.RobuxGive,
		RobuxGet:     tpl.RobuxGet,
		Status:       entity.StatusOutbound,
	}
	if err := w.trades.AddPending(ctx, pending); err != nil {
		logger(ctx).Error("Failed to save pending trade", logx.FieldTradeID, tradeID.String(), logx.Error(err))
	}

	if err := w.ledger.MarkSent(ctx, tpl.ID, opp.TargetUserID); err != nil {
		logger(ctx).Error("Failed to mark counterparty as sent", logx.Error(err))
	}

	if _, err := w.templates.RecordSend(ctx, tpl.ID, pending.CreatedAt); err != nil {
		logger(ctx).Error("Failed to bump template counter", logx.FieldTemplateID, tpl.ID, logx.Error(err))
	}

	metrics.PendingTrades.Inc()
}

// namedItems fills in ids and valuation data on the template items.
func namedItems(items []entity.Item, rc *RunContext) []entity.Item {
	out := make([]entity.Item, len(items))
	for i, item := range items {
		out[i] = item
		if ids := rc.Index.Resolve([]entity.Item{item}); len(ids) == 1 {
			out[i].ID = ids[0]
		}
		if v, ok := rc.Index.Lookup(out[i].ID); ok {
			out[i].Value = v.Value
			out[i].RAP = v.RAP
			if out[i].Name == "" {
				out[i].Name = v.Name
			}
		}
	}
	return out
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
