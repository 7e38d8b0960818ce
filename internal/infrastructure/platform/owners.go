package platform

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
)

// noOwnerAgeLimit stands in for "any holding age" in the owners query.
const noOwnerAgeLimit = 100000000

type ownerDTO struct {
	UserID     int64 `json:"user_id"`
	UserIDAlt  int64 `json:"userId"`
	OwnedSince int64 `json:"owned_since"`
	LastOnline int64 `json:"last_online"`
}

func (o ownerDTO) toEntity() entity.CandidateOwner {
	owner := entity.CandidateOwner{UserID: cmp.Or(o.UserID, o.UserIDAlt)}
	if o.OwnedSince > 0 {
		owner.OwnedSince = time.Unix(o.OwnedSince, 0).UTC()
	}
	if o.LastOnline > 0 {
		owner.LastOnline = time.Unix(o.LastOnline, 0).UTC()
	}
	return owner
}

// ownersResponse tolerates {"owners":[...]}, {"data":[...]} and a bare array.
type ownersResponse struct {
	Owners []ownerDTO
}

func (r *ownersResponse) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &r.Owners) //nolint:wrapcheck
	}

	var wrapped struct {
		Owners []ownerDTO          `json:"owners"`
		Data   jsoniter.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err //nolint:wrapcheck
	}

	r.Owners = wrapped.Owners
	if r.Owners == nil && len(wrapped.Data) > 0 && wrapped.Data[0] == '[' {
		return json.Unmarshal(wrapped.Data, &r.Owners) //nolint:wrapcheck
	}

	return nil
}

// FetchCandidateOwners lists users holding the requested items. Answers are
// cached per query; failed lookups are retried with a constant gap.
func (c *Client) FetchCandidateOwners(ctx context.Context, q entity.OwnerQuery) ([]entity.CandidateOwner, error) {
	ids := lo.Uniq(lo.Filter(q.ItemIDs, func(id int64, _ int) bool { return id > 0 }))
	if len(ids) == 0 {
		return nil, domain.NewError(errcodes.ValidationError, "no valid item ids")
	}

	maxOwnerDays := q.MaxOwnerDays
	if maxOwnerDays <= 0 {
		maxOwnerDays = noOwnerAgeLimit
	}

	params := url.Values{}
	params.Set("item_ids", strings.Join(lo.Map(ids, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ","))
	params.Set("max_owner_days", strconv.Itoa(maxOwnerDays))
	params.Set("last_online_days", strconv.Itoa(q.LastOnlineDays))
	params.Set("detailed", "true")

	key := params.Encode()
	if cached, ok := c.owners.Get(key); ok {
		return cached.([]entity.CandidateOwner), nil //nolint:forcetypeassert
	}

	attempts := max(c.cfg.OwnersRetries, 1)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.ownersBackoff), uint64(attempts-1)), //nolint:gosec
		ctx,
	)

	var resp ownersResponse
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		_, err := c.call(ctx, "common_owners", http.MethodGet, c.cfg.OwnersURL+"/api/common-owners?"+key, nil, &resp)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		logger(ctx).Warn("Common owners fetch failed", logx.FieldAttempt, attempt, logx.Error(err))
		return err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("fetch common owners: %w", err)
	}

	owners := lo.Map(resp.Owners, func(o ownerDTO, _ int) entity.CandidateOwner { return o.toEntity() })
	owners = lo.Filter(owners, func(o entity.CandidateOwner, _ int) bool { return o.UserID > 0 })

	c.owners.SetDefault(key, owners)

	return owners, nil
}
