package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/persistence"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/errcodes"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.New(context.Background(), storage.NewMemory())
}

func TestTemplateRepository(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	repo := persistence.NewTemplateRepository(newStore(t), "1001")

	_, err := repo.Save(ctx, entity.TradeTemplate{Name: "bad"})
	rq.True(domain.HasCode(err, errcodes.InvalidTemplate))

	saved, err := repo.Save(ctx, entity.TradeTemplate{
		Name:           "helm for fedora",
		GivingItems:    []entity.Item{{Name: "Sparkle Time Fedora"}},
		ReceivingItems: []entity.Item{{Name: "Valkyrie Helm"}},
		DailyGoal:      2,
	})
	rq.NoError(err)
	rq.NotEmpty(saved.ID)
	rq.Equal(entity.CompletionIncomplete, saved.Status)

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tpl, err := repo.RecordSend(ctx, saved.ID, day)
	rq.NoError(err)
	rq.Equal(1, tpl.SentToday)

	tpl, err = repo.RecordSend(ctx, saved.ID, day)
	rq.NoError(err)
	rq.Equal(entity.CompletionComplete, tpl.Status)

	got, err := repo.GetByID(ctx, saved.ID)
	rq.NoError(err)
	rq.Equal(0, got.Remaining(day))

	_, err = repo.RecordSend(ctx, "missing", day)
	rq.True(domain.HasCode(err, errcodes.TemplateNotFound))

	rq.NoError(repo.Delete(ctx, saved.ID))
	list, err := repo.List(ctx)
	rq.NoError(err)
	rq.Empty(list)
}

func pending(id string, uid int64) entity.PendingTrade {
	return entity.PendingTrade{
		ID:           entity.MustTradeID(id),
		TemplateID:   "tpl",
		TargetUserID: uid,
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:       entity.StatusOutbound,
	}
}

func TestTradeRepositoryFinalizeIdempotent(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	repo := persistence.NewTradeRepository(newStore(t), "1001")

	rq.NoError(repo.AddPending(ctx, pending("1", 7)))
	rq.NoError(repo.AddPending(ctx, pending("2", 8)))
	rq.NoError(repo.AddPending(ctx, pending("2", 8)))

	list, err := repo.Pending(ctx)
	rq.NoError(err)
	rq.Len(list, 2)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	done := pending("1", 7).Finalize(entity.StatusCompleted, at)

	fresh, err := repo.Finalize(ctx, done)
	rq.NoError(err)
	rq.Len(fresh, 1)

	fresh, err = repo.Finalize(ctx, done)
	rq.NoError(err)
	rq.Empty(fresh)

	finalized, err := repo.Finalized(ctx)
	rq.NoError(err)
	rq.Len(finalized, 1)
	rq.Equal(entity.StatusCompleted, finalized[0].PlatformStatus)

	list, err = repo.Pending(ctx)
	rq.NoError(err)
	rq.Len(list, 1)
	rq.Equal("2", list[0].ID.String())
}

func TestTradeRepositoryReadsLegacyRows(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store := newStore(t)
	key := storage.AccountKey(storage.KeyPendingTrades, "1001")
	rq.NoError(store.Set(ctx, key, []map[string]any{{
		"id":           "00042",
		"autoTradeId":  "tpl",
		"targetUserId": "7",
		"timestamp":    "2026-03-01T10:00:00Z",
	}}))

	list, err := persistence.NewTradeRepository(store, "1001").Pending(ctx)
	rq.NoError(err)
	rq.Len(list, 1)
	rq.Equal("42", list[0].ID.String())
	rq.EqualValues(7, list[0].TargetUserID)
	rq.Equal(entity.StatusOutbound, list[0].Status)
	rq.False(list[0].CreatedAt.IsZero())
}

func TestTradeRepositoryNotifiedCap(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	repo := persistence.NewTradeRepository(newStore(t), "1001")

	for i := range 1001 {
		rq.NoError(repo.MarkNotified(ctx, fmt.Sprintf("%d-completed", i)))
	}

	old, err := repo.IsNotified(ctx, "0-completed")
	rq.NoError(err)
	rq.False(old)

	recent, err := repo.IsNotified(ctx, "1000-completed")
	rq.NoError(err)
	rq.True(recent)
}

func TestExclusionRepository(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store := newStore(t)
	repo := persistence.NewExclusionRepository(store, "1001")

	rq.NoError(repo.Add(ctx, 7))
	rq.NoError(repo.Add(ctx, 7))
	rq.NoError(repo.Add(ctx, 3))

	excluded, err := repo.IsExcluded(ctx, 7)
	rq.NoError(err)
	rq.True(excluded)

	reloaded := persistence.NewExclusionRepository(store, "1001")
	list, err := reloaded.List(ctx)
	rq.NoError(err)
	rq.Equal([]int64{3, 7}, list)

	other := persistence.NewExclusionRepository(store, "2002")
	excluded, err = other.IsExcluded(ctx, 7)
	rq.NoError(err)
	rq.False(excluded)

	rq.NoError(reloaded.Remove(ctx, 7))
	excluded, err = reloaded.IsExcluded(ctx, 7)
	rq.NoError(err)
	rq.False(excluded)
}
