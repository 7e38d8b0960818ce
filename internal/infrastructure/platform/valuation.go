package platform

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/logx"
)

const feedCacheKey = "feed"

// Entries are positional: [name, acronym, rap, value, defaultValue, ...].
const minFeedEntryLen = 5

type itemDetails struct {
	Success bool                             `json:"success"`
	Items   map[string][]jsoniter.RawMessage `json:"items"`
}

// FetchValuationFeed returns the item valuation feed sorted by value,
// highest first. The feed is cached; when a refresh fails the last good feed
// is served.
func (c *Client) FetchValuationFeed(ctx context.Context) ([]entity.Valuation, error) {
	if cached, ok := c.feed.Get(feedCacheKey); ok {
		return cached.([]entity.Valuation), nil //nolint:forcetypeassert
	}

	feed, err := c.fetchValuationFeed(ctx)
	if err != nil {
		if stale := c.lastFeed.Load(); stale != nil {
			logger(ctx).Warn("Valuation feed refresh failed, serving stale copy", logx.Error(err))
			return *stale, nil
		}
		return nil, err
	}

	c.feed.SetDefault(feedCacheKey, feed)
	c.lastFeed.Store(&feed)

	return feed, nil
}

func (c *Client) fetchValuationFeed(ctx context.Context) ([]entity.Valuation, error) {
	var details itemDetails
	if _, err := c.call(ctx, "valuation_feed", http.MethodGet, c.cfg.ValuationURL+"/items/v1/itemdetails", nil, &details); err != nil {
		return nil, fmt.Errorf("fetch item details: %w", err)
	}

	feed := make([]entity.Valuation, 0, len(details.Items))
	for rawID, fields := range details.Items {
		v, ok := parseValuation(rawID, fields)
		if ok {
			feed = append(feed, v)
		}
	}

	slices.SortFunc(feed, func(a, b entity.Valuation) int {
		return cmp.Or(cmp.Compare(b.Value, a.Value), cmp.Compare(a.ID, b.ID))
	})

	return feed, nil
}

func parseValuation(rawID string, fields []jsoniter.RawMessage) (entity.Valuation, bool) {
	if len(fields) < minFeedEntryLen {
		return entity.Valuation{}, false
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return entity.Valuation{}, false
	}

	var name string
	if json.Unmarshal(fields[0], &name) != nil {
		return entity.Valuation{}, false
	}
	name = strings.TrimSpace(name)

	var rap, value int64
	_ = json.Unmarshal(fields[2], &rap)
	_ = json.Unmarshal(fields[4], &value)

	if name == "" || value <= 0 {
		return entity.Valuation{}, false
	}

	return entity.Valuation{ID: id, Name: name, RAP: rap, Value: value}, true
}
