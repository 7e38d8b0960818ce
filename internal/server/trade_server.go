package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/httpx/reply"
	"trade_engine/pkg/rest"
)

type tradeRepository interface {
	Pending(ctx context.Context) ([]entity.PendingTrade, error)
	Finalized(ctx context.Context) ([]entity.FinalizedTrade, error)
}

type exclusionRepository interface {
	List(ctx context.Context) ([]int64, error)
	Remove(ctx context.Context, userID int64) error
}

type TradeServer struct {
	trades     tradeRepository
	exclusions exclusionRepository
}

func NewTradeServer(trades tradeRepository, exclusions exclusionRepository) TradeServer {
	return TradeServer{
		trades:     trades,
		exclusions: exclusions,
	}
}

func (s TradeServer) getV1PendingTrades(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	trades, err := s.trades.Pending(ctx)
	if err != nil {
		return fmt.Errorf("trades.Pending: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, lo.Map(trades, func(t entity.PendingTrade, _ int) rest.PendingTrade {
		return newRESTPendingTrade(t)
	}))

	return nil
}

func (s TradeServer) getV1FinalizedTrades(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	trades, err := s.trades.Finalized(ctx)
	if err != nil {
		return fmt.Errorf("trades.Finalized: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, lo.Map(trades, func(t entity.FinalizedTrade, _ int) rest.FinalizedTrade {
		return newRESTFinalizedTrade(t)
	}))

	return nil
}

func (s TradeServer) getV1Exclusions(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	ids, err := s.exclusions.List(ctx)
	if err != nil {
		return fmt.Errorf("exclusions.List: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, rest.Exclusions{UserIDs: lo.Ternary(ids == nil, []int64{}, ids)})

	return nil
}

func (s TradeServer) deleteV1Exclusion(w http.ResponseWriter, r *http.Request) error {
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return errcodes.New(errcodes.ValidationError, "userId must be a positive integer")
	}

	if err := s.exclusions.Remove(r.Context(), userID); err != nil {
		return fmt.Errorf("exclusions.Remove: %w", err)
	}

	reply.OK(w)

	return nil
}
