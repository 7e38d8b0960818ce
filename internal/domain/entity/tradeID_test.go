package entity_test

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseTradeID(t *testing.T) {
	rq := require.New(t)

	testCases := []struct {
		name     string
		raw      string
		expected string
		err      error
	}{
		{name: "plain", raw: "12345678901234567890", expected: "12345678901234567890"},
		{name: "padded", raw: "  42 ", expected: "42"},
		{name: "leading zeros", raw: "00042", expected: "42"},
		{name: "plus sign", raw: "+77", expected: "77"},
		{name: "non numeric", raw: "abc-1", err: entity.ErrInvalidTradeID},
		{name: "path traversal", raw: "1/../decline", err: entity.ErrInvalidTradeID},
		{name: "quote", raw: `1"}`, err: entity.ErrInvalidTradeID},
		{name: "negative", raw: "-5", err: entity.ErrInvalidTradeID},
		{name: "empty", raw: " ", err: entity.ErrInvalidTradeID},
		{name: "null literal", raw: "null", err: entity.ErrInvalidTradeID},
		{name: "undefined literal", raw: "undefined", err: entity.ErrInvalidTradeID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(*testing.T) {
			id, err := entity.ParseTradeID(tc.raw)
			if tc.err != nil {
				rq.ErrorIs(err, tc.err)
				rq.True(id.IsZero())
				return
			}

			rq.NoError(err)
			rq.Equal(tc.expected, id.String())
		})
	}
}

func TestTradeIDEqualAcrossRepresentations(t *testing.T) {
	rq := require.New(t)

	var fromNumber, fromString entity.TradeID

	rq.NoError(json.Unmarshal([]byte(`9007199254740993`), &fromNumber))
	rq.NoError(json.Unmarshal([]byte(`"9007199254740993"`), &fromString))

	rq.True(fromNumber.Equal(fromString))
	rq.Equal("9007199254740993", fromNumber.String())

	out, err := json.Marshal(fromNumber)
	rq.NoError(err)
	rq.Equal(`"9007199254740993"`, string(out))
}

func TestTemplateRecordSend(t *testing.T) {
	rq := require.New(t)

	day1 := mustTime("2026-03-01T10:00:00Z")
	day2 := mustTime("2026-03-02T10:00:00Z")

	tpl := entity.TradeTemplate{DailyGoal: 2}

	rq.Equal(2, tpl.Remaining(day1))

	tpl.RecordSend(day1)
	rq.Equal(1, tpl.AlreadySentToday(day1))
	rq.Equal(entity.CompletionIncomplete, tpl.Status)

	tpl.RecordSend(day1)
	rq.Equal(0, tpl.Remaining(day1))
	rq.Equal(entity.CompletionComplete, tpl.Status)

	rq.Equal(0, tpl.AlreadySentToday(day2))
	rq.Equal(2, tpl.Remaining(day2))
}

func TestFinalize(t *testing.T) {
	rq := require.New(t)

	at := mustTime("2026-03-01T10:00:00Z")
	pending := entity.PendingTrade{ID: entity.MustTradeID("7"), Status: entity.StatusOutbound}

	finalized := pending.Finalize(entity.StatusCompleted, at)

	rq.Equal(entity.StatusCompleted, finalized.Status)
	rq.Equal(entity.StatusCompleted, finalized.PlatformStatus)
	rq.Equal(at, finalized.FinalizedAt)
	rq.NotNil(finalized.Giving)
	rq.NotNil(finalized.Receiving)
	rq.Equal("7-completed", entity.TradeNotification{Trade: finalized, Status: entity.StatusCompleted}.Key())
}

func TestTradeStateNormalize(t *testing.T) {
	active, inactive := true, false

	testCases := []struct {
		name     string
		state    entity.TradeState
		expected entity.TradeStatus
		ok       bool
	}{
		{name: "open active", state: entity.TradeState{Status: "Open", IsActive: &active}, expected: entity.StatusOpen, ok: true},
		{name: "open inactive", state: entity.TradeState{Status: "Open", IsActive: &inactive}, expected: entity.StatusDeclined, ok: true},
		{name: "completed", state: entity.TradeState{Status: " Completed "}, expected: entity.StatusCompleted, ok: true},
		{name: "countered", state: entity.TradeState{Status: "Countered"}, expected: entity.StatusCountered, ok: true},
		{name: "no status inactive", state: entity.TradeState{IsActive: &inactive}, expected: entity.StatusDeclined, ok: true},
		{name: "no status", state: entity.TradeState{}, ok: false},
		{name: "unknown", state: entity.TradeState{Status: "Pending"}, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)

			status, ok := tc.state.Normalize()
			rq.Equal(tc.ok, ok)
			rq.Equal(tc.expected, status)
		})
	}
}

func TestTradeIDNullJSON(t *testing.T) {
	rq := require.New(t)

	var holder struct {
		ID entity.TradeID `json:"id"`
	}

	rq.NoError(json.Unmarshal([]byte(`{"id":null}`), &holder))
	rq.True(holder.ID.IsZero())
}

func TestTradeIDRejectsUnsafeJSON(t *testing.T) {
	rq := require.New(t)

	var holder struct {
		ID entity.TradeID `json:"id"`
	}

	err := json.Unmarshal([]byte(`{"id":"1\" ,\"x\":\"2"}`), &holder)
	rq.Error(err)
	rq.True(holder.ID.IsZero())

	out, err := json.Marshal(entity.TradeID{})
	rq.NoError(err)
	rq.Equal(`""`, string(out))
}
