package matcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/samber/lo"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/ledger"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type Platform interface {
	FetchValuationFeed(ctx context.Context) ([]entity.Valuation, error)
	FetchCandidateOwners(ctx context.Context, query entity.OwnerQuery) ([]entity.CandidateOwner, error)
}

type Ledger interface {
	IsSent(ctx context.Context, templateID string, targetUserID int64) (bool, error)
	Seen(ctx context.Context, key string) (bool, error)
}

type Exclusions interface {
	IsExcluded(ctx context.Context, targetUserID int64) (bool, error)
}

// Matcher turns a template and the current holders of its requested items into
// fresh opportunities.
type Matcher struct {
	platform   Platform
	ledger     Ledger
	exclusions Exclusions

	maxOwnerDays   int
	lastOnlineDays int

	shuffle func(n int, swap func(i, j int))
	clock   func() time.Time
}

func New(platform Platform, ledger Ledger, exclusions Exclusions) *Matcher {
	return &Matcher{
		platform:   platform,
		ledger:     ledger,
		exclusions: exclusions,
		shuffle:    rand.Shuffle,
		clock:      time.Now,
	}
}

func (m *Matcher) WithOwnerFilter(maxOwnerDays, lastOnlineDays int) *Matcher {
	m.maxOwnerDays = maxOwnerDays
	m.lastOnlineDays = lastOnlineDays
	return m
}

func (m *Matcher) WithShuffle(shuffle func(n int, swap func(i, j int))) *Matcher {
	m.shuffle = shuffle
	return m
}

func (m *Matcher) WithClock(clock func() time.Time) *Matcher {
	m.clock = clock
	return m
}

// Index builds the name lookup from the valuation feed. A feed failure yields
// an empty index so templates with raw ids still resolve.
func (m *Matcher) Index(ctx context.Context) *ItemIndex {
	feed, err := m.platform.FetchValuationFeed(ctx)
	if err != nil {
		logger(ctx).Warn("Valuation feed unavailable, resolving by raw ids", logx.Error(err))
		return NewItemIndex(nil)
	}

	return NewItemIndex(feed)
}

// Find returns at most needed opportunities for tpl. Counterparties already
// contacted for the template, holding the exact same combo or excluded for
// privacy are skipped. Survivors are shuffled before truncation.
func (m *Matcher) Find(
	ctx context.Context,
	index *ItemIndex,
	tpl entity.TradeTemplate,
	needed int,
) ([]entity.Opportunity, error) {
	if needed <= 0 {
		return nil, nil
	}

	receiving := index.Resolve(tpl.ReceivingItems)
	giving := index.Resolve(tpl.GivingItems)

	// неполный шаблон дал бы другой комбо-ключ и другой трейд
	if len(receiving) == 0 || len(receiving) != len(tpl.ReceivingItems) || len(giving) != len(tpl.GivingItems) {
		logger(ctx).Warn("Template has unresolvable items",
			logx.FieldTemplateID, tpl.ID,
			"template_name", tpl.Name,
			"giving", fmt.Sprintf("%d/%d", len(giving), len(tpl.GivingItems)),
			"receiving", fmt.Sprintf("%d/%d", len(receiving), len(tpl.ReceivingItems)),
		)
		return nil, nil
	}

	owners, err := m.platform.FetchCandidateOwners(ctx, entity.OwnerQuery{
		ItemIDs:        receiving,
		MaxOwnerDays:   m.maxOwnerDays,
		LastOnlineDays: m.lastOnlineDays,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidate owners: %w", err)
	}

	userIDs := lo.Uniq(lo.Map(owners, func(o entity.CandidateOwner, _ int) int64 { return o.UserID }))

	fresh := make([]entity.Opportunity, 0, len(userIDs))
	for _, uid := range userIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		opp, ok, err := m.candidate(ctx, tpl, uid, giving, receiving)
		if err != nil {
			return nil, err
		}
		if ok {
			fresh = append(fresh, opp)
		}
	}

	m.shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })

	if len(fresh) > needed {
		fresh = fresh[:needed]
	}

	logger(ctx).Debug("Opportunities matched",
		logx.FieldTemplateID, tpl.ID,
		"owners", len(userIDs),
		"fresh", len(fresh),
		"needed", needed,
	)

	return fresh, nil
}

func (m *Matcher) candidate(
	ctx context.Context,
	tpl entity.TradeTemplate,
	uid int64,
	giving, receiving []int64,
) (entity.Opportunity, bool, error) {
	sent, err := m.ledger.IsSent(ctx, tpl.ID, uid)
	if err != nil || sent {
		return entity.Opportunity{}, false, err
	}

	excluded, err := m.exclusions.IsExcluded(ctx, uid)
	if err != nil || excluded {
		return entity.Opportunity{}, false, err
	}

	key := ledger.ComboKey(uid, giving, receiving, tpl.RobuxGive, tpl.RobuxGet)
	seen, err := m.ledger.Seen(ctx, key)
	if err != nil || seen {
		return entity.Opportunity{}, false, err
	}

	return entity.Opportunity{
		TemplateID:   tpl.ID,
		TargetUserID: uid,
		DedupKey:     key,
		DiscoveredAt: m.clock(),
		GivingIDs:    giving,
		ReceivingIDs: receiving,
	}, true, nil
}
