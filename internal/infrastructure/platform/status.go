package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trade_engine/internal/domain/entity"
)

// OutboundPageSize is the largest page the outbound listing serves.
const OutboundPageSize = 100

type outboundTradeDTO struct {
	ID       entity.TradeID `json:"id"`
	Created  time.Time      `json:"created"`
	Status   string         `json:"status"`
	IsActive *bool          `json:"isActive"`
}

type outboundPageDTO struct {
	Data           []outboundTradeDTO `json:"data"`
	NextPageCursor *string            `json:"nextPageCursor"`
}

// OutboundPage returns one page of the account's outbound trades, newest
// first. An empty cursor requests the first page.
func (c *Client) OutboundPage(ctx context.Context, cursor string) (entity.OutboundPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(OutboundPageSize))
	params.Set("sortOrder", "Desc")
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp outboundPageDTO
	endpoint := c.cfg.TradesURL + "/v1/trades/outbound?" + params.Encode()
	if _, err := c.call(ctx, "outbound_trades", http.MethodGet, endpoint, nil, &resp); err != nil {
		return entity.OutboundPage{}, fmt.Errorf("outbound trades: %w", err)
	}

	page := entity.OutboundPage{Trades: make([]entity.OutboundTrade, 0, len(resp.Data))}
	for _, t := range resp.Data {
		if t.ID.IsZero() {
			continue
		}
		page.Trades = append(page.Trades, entity.OutboundTrade{
			ID:        t.ID,
			CreatedAt: t.Created,
			Status:    t.Status,
			IsActive:  t.IsActive,
		})
	}
	if resp.NextPageCursor != nil {
		page.NextCursor = *resp.NextPageCursor
	}

	return page, nil
}

type tradeStateDTO struct {
	Status   string `json:"status"`
	IsActive *bool  `json:"isActive"`
}

// TradeStatus looks up a single trade.
func (c *Client) TradeStatus(ctx context.Context, id entity.TradeID) (entity.TradeState, error) {
	var resp tradeStateDTO
	endpoint := c.cfg.TradesURL + "/v1/trades/" + url.PathEscape(id.String())
	err := c.retryTransient(ctx, "trade_status", func() error {
		_, err := c.call(ctx, "trade_status", http.MethodGet, endpoint, nil, &resp)
		return err
	})
	if err != nil {
		return entity.TradeState{}, fmt.Errorf("trade status: %w", err)
	}

	return entity.TradeState{Status: resp.Status, IsActive: resp.IsActive}, nil
}

// DeclineTrade declines one of the account's trades.
func (c *Client) DeclineTrade(ctx context.Context, id entity.TradeID) error {
	endpoint := c.cfg.TradesURL + "/v1/trades/" + url.PathEscape(id.String()) + "/decline"
	if _, err := c.call(ctx, "decline_trade", http.MethodPost, endpoint, struct{}{}, nil); err != nil {
		return fmt.Errorf("decline trade: %w", err)
	}

	return nil
}
