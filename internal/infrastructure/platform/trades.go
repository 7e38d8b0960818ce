package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
)

type canTradeResponse struct {
	CanTrade bool   `json:"canTrade"`
	Status   string `json:"status"`
}

// CheckEligibility asks whether the account may trade with userID.
func (c *Client) CheckEligibility(ctx context.Context, userID int64) (entity.Eligibility, error) {
	var resp canTradeResponse

	endpoint := c.cfg.TradesURL + "/v1/users/" + strconv.FormatInt(userID, 10) + "/can-trade-with"
	err := c.retryTransient(ctx, "can_trade_with", func() error {
		_, err := c.call(ctx, "can_trade_with", http.MethodGet, endpoint, nil, &resp)
		return err
	})
	if err != nil {
		return entity.Eligibility{}, fmt.Errorf("check eligibility: %w", err)
	}

	return entity.Eligibility{CanTrade: resp.CanTrade, Status: resp.Status}, nil
}

type instanceSide struct {
	UserID  int64   `json:"user_id"`
	ItemIDs []int64 `json:"item_ids"`
	Robux   int64   `json:"robux"`
}

type instanceRequest struct {
	Trade []instanceSide `json:"trade"`
}

type instanceResponse struct {
	Participants map[string]struct {
		InstanceIDs []string `json:"instanceIds"`
	} `json:"participants"`
}

// ResolveInstances maps the item ids of both sides onto concrete tradable
// instances. The result is keyed by participant user id; a participant the
// resolver could not serve is absent.
func (c *Client) ResolveInstances(ctx context.Context, req entity.InstanceRequest) (map[int64][]string, error) {
	body := instanceRequest{Trade: []instanceSide{
		{UserID: req.SenderUserID, ItemIDs: req.SenderItemIDs, Robux: req.SenderRobux},
		{UserID: req.TargetUserID, ItemIDs: req.TargetItemIDs, Robux: req.TargetRobux},
	}}

	var resp instanceResponse
	err := c.retryTransient(ctx, "resolve_instances", func() error {
		_, err := c.call(ctx, "resolve_instances", http.MethodPost, c.cfg.OwnersURL+"/api/instance-ids", body, &resp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve instances: %w", err)
	}

	out := make(map[int64][]string, len(resp.Participants))
	for rawID, p := range resp.Participants {
		uid, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || p.InstanceIDs == nil {
			continue
		}
		out[uid] = p.InstanceIDs
	}

	return out, nil
}

type offerSide struct {
	UserID                     int64    `json:"userId"`
	Robux                      int64    `json:"robux"`
	CollectibleItemInstanceIDs []string `json:"collectibleItemInstanceIds"`
}

type sendRequest struct {
	SenderOffer    offerSide `json:"senderOffer"`
	RecipientOffer offerSide `json:"recipientOffer"`
}

type sendResponse struct {
	ID      *entity.TradeID `json:"id"`
	TradeID *entity.TradeID `json:"tradeId"`
}

// SubmitTrade sends the offer. A step-up demand is returned as
// *domain.ChallengeError, a 429 as *domain.RateLimitError.
func (c *Client) SubmitTrade(ctx context.Context, offer entity.TradeOffer) (entity.TradeID, error) {
	body := sendRequest{
		SenderOffer: offerSide{
			UserID:                     offer.SenderUserID,
			Robux:                      offer.SenderRobux,
			CollectibleItemInstanceIDs: nonNil(offer.SenderInstances),
		},
		RecipientOffer: offerSide{
			UserID:                     offer.TargetUserID,
			Robux:                      offer.TargetRobux,
			CollectibleItemInstanceIDs: nonNil(offer.TargetInstances),
		},
	}

	var resp sendResponse
	if _, err := c.call(ctx, "send_trade", http.MethodPost, c.cfg.TradesURL+"/v2/trades/send", body, &resp); err != nil {
		return entity.TradeID{}, fmt.Errorf("send trade: %w", err)
	}

	switch {
	case resp.ID != nil && !resp.ID.IsZero():
		return *resp.ID, nil
	case resp.TradeID != nil && !resp.TradeID.IsZero():
		return *resp.TradeID, nil
	default:
		return entity.TradeID{}, domain.NewError(errcodes.TradeRejected, "no trade id in response")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
