package platform_test

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/config"
	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/platform"
	"trade_engine/pkg/errcodes"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

func newClient(t *testing.T, mux *http.ServeMux) *platform.Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return platform.New(config.Platform{
		TradesURL:     srv.URL,
		InventoryURL:  srv.URL,
		ChallengeURL:  srv.URL,
		ApisURL:       srv.URL,
		ValuationURL:  srv.URL,
		OwnersURL:     srv.URL,
		Cookie:        ".ROBLOSECURITY=test",
		UserID:        1001,
		Timeout:       5 * time.Second,
		RatePerSecond: 1000,
		Burst:         100,
		ValuationTTL:  time.Minute,
		OwnersTTL:     time.Minute,
		OwnersRetries: 3,
		OwnersBackoff: time.Millisecond,
		Retries:       3,
		RetryBackoff:  time.Millisecond,
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

var offer = entity.TradeOffer{ //nolint:gochecknoglobals // skip
	SenderUserID:    1001,
	SenderInstances: []string{"a-1"},
	TargetUserID:    7,
	TargetRobux:     0,
}

func TestSubmitTrade(t *testing.T) {
	metadata := base64.StdEncoding.EncodeToString([]byte(`{"challengeId":"meta-1","actionType":"Generic"}`))

	testCases := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(rq *require.Assertions, id entity.TradeID, err error)
	}{
		{
			name:   "numeric id",
			status: http.StatusOK,
			body:   `{"id": 9007199254740993}`,
			check: func(rq *require.Assertions, id entity.TradeID, err error) {
				rq.NoError(err)
				rq.Equal("9007199254740993", id.String())
			},
		},
		{
			name:   "trade id field",
			status: http.StatusOK,
			body:   `{"tradeId": "42"}`,
			check: func(rq *require.Assertions, id entity.TradeID, err error) {
				rq.NoError(err)
				rq.Equal("42", id.String())
			},
		},
		{
			name:   "no id",
			status: http.StatusOK,
			body:   `{}`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				rq.True(domain.HasCode(err, errcodes.TradeRejected))
			},
		},
		{
			name:   "challenge",
			status: http.StatusForbidden,
			header: map[string]string{
				"rblx-challenge-id":       "hdr-1",
				"rblx-challenge-type":     "twostepverification",
				"rblx-challenge-metadata": metadata,
			},
			body: `{"errors":[{"code":0,"message":"Challenge is required to authorize the request"}]}`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				ch, ok := domain.AsChallenge(err)
				rq.True(ok)
				rq.Equal(entity.Challenge{ID: "meta-1", HeaderID: "hdr-1", Type: "twostepverification"}, ch)
			},
		},
		{
			name:   "privacy",
			status: http.StatusBadRequest,
			body:   `{"errors":[{"code":22,"message":"The user cannot be traded with."}]}`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				rq.True(domain.HasCode(err, errcodes.PrivacyRestricted))
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "3"},
			body:   `{"errors":[{"code":0,"message":"Too many requests"}]}`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				wait, ok := domain.RetryAfter(err)
				rq.True(ok)
				rq.Equal(3*time.Second, wait)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `oops`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				rq.True(platform.IsTransient(err))
			},
		},
		{
			name:   "other rejection",
			status: http.StatusBadRequest,
			body:   `{"errors":[{"code":8,"message":"Invalid trade"}]}`,
			check: func(rq *require.Assertions, _ entity.TradeID, err error) {
				rq.True(domain.HasCode(err, errcodes.PlatformError))
				rq.ErrorContains(err, "Invalid trade")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)

			var got map[string]map[string]any

			mux := http.NewServeMux()
			mux.HandleFunc("POST /v2/trades/send", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tc.status, tc.body)
			})

			id, err := newClient(t, mux).SubmitTrade(t.Context(), offer)
			tc.check(rq, id, err)

			rq.EqualValues(1001, got["senderOffer"]["userId"])
			rq.EqualValues(7, got["recipientOffer"]["userId"])
			rq.Equal([]any{}, got["recipientOffer"]["collectibleItemInstanceIds"])
		})
	}
}

func TestVerifyAndContinueChallenge(t *testing.T) {
	rq := require.New(t)

	var verifyBody map[string]string
	var continueBody map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/users/1001/challenges/authenticator/verify", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&verifyBody)
		if verifyBody["code"] == "000000" {
			writeJSON(w, http.StatusBadRequest, `{"errors":[{"code":10,"message":"Invalid two step verification code."}]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"verificationToken":"tok-1"}`)
	})
	mux.HandleFunc("POST /challenge/v1/continue", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&continueBody)
		writeJSON(w, http.StatusOK, `{}`)
	})

	c := newClient(t, mux)

	token, err := c.VerifyChallenge(t.Context(), 1001, "meta-1", "123456")
	rq.NoError(err)
	rq.Equal("tok-1", token)
	rq.Equal(map[string]string{"challengeId": "meta-1", "actionType": "Generic", "code": "123456"}, verifyBody)

	_, err = c.VerifyChallenge(t.Context(), 1001, "meta-1", "000000")
	rq.True(domain.HasCode(err, errcodes.ChallengeExpired))

	err = c.ContinueChallenge(t.Context(), entity.Challenge{ID: "meta-1", HeaderID: "hdr-1"}, token)
	rq.NoError(err)
	rq.Equal("hdr-1", continueBody["challengeId"])
	rq.Equal("twostepverification", continueBody["challengeType"])

	var meta map[string]any
	rq.NoError(json.Unmarshal([]byte(continueBody["challengeMetadata"]), &meta))
	rq.Equal(map[string]any{
		"verificationToken": "tok-1",
		"rememberDevice":    false,
		"challengeId":       "meta-1",
		"actionType":        "Generic",
	}, meta)
}

func TestFetchValuationFeed(t *testing.T) {
	rq := require.New(t)

	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/v1/itemdetails", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"success":true,"items":{
			"100":["Dominus Empyreus","",9000,-1,90000,1,1,1,-1,-1],
			"200":[" Valkyrie Helm ","VH",100,-1,500,1,1,1,-1,-1],
			"300":["Worthless","",5,-1,0,1,1,1,-1,-1],
			"400":["Short","",5]
		}}`)
	})

	c := newClient(t, mux)

	feed, err := c.FetchValuationFeed(t.Context())
	rq.NoError(err)
	rq.Equal([]entity.Valuation{
		{ID: 100, Name: "Dominus Empyreus", RAP: 9000, Value: 90000},
		{ID: 200, Name: "Valkyrie Helm", RAP: 100, Value: 500},
	}, feed)

	_, err = c.FetchValuationFeed(t.Context())
	rq.NoError(err)
	rq.EqualValues(1, calls.Load())
}

func TestFetchValuationFeedServesStale(t *testing.T) {
	rq := require.New(t)

	var fail atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/v1/itemdetails", func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"items":{"100":["Dominus Empyreus","",9000,-1,90000]}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := platform.New(config.Platform{
		ValuationURL:  srv.URL,
		RatePerSecond: 1000,
		Burst:         10,
		ValuationTTL:  time.Millisecond,
		OwnersTTL:     time.Minute,
	})

	fresh, err := c.FetchValuationFeed(t.Context())
	rq.NoError(err)
	rq.Len(fresh, 1)

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)

	stale, err := c.FetchValuationFeed(t.Context())
	rq.NoError(err)
	rq.Equal(fresh, stale)
}

func TestFetchCandidateOwners(t *testing.T) {
	rq := require.New(t)

	var calls atomic.Int32
	var query string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/common-owners", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusInternalServerError, `{}`)
			return
		}
		query = r.URL.RawQuery
		writeJSON(w, http.StatusOK, `{"owners":[{"user_id":7,"last_online":1767225600},{"userId":8},{"user_id":0}]}`)
	})

	c := newClient(t, mux)
	q := entity.OwnerQuery{ItemIDs: []int64{200, -1, 200, 100}, LastOnlineDays: 3}

	owners, err := c.FetchCandidateOwners(t.Context(), q)
	rq.NoError(err)
	rq.Len(owners, 2)
	rq.EqualValues(7, owners[0].UserID)
	rq.Equal(time.Unix(1767225600, 0).UTC(), owners[0].LastOnline)
	rq.EqualValues(8, owners[1].UserID)
	rq.EqualValues(3, calls.Load())
	rq.Contains(query, "item_ids=200%2C100")
	rq.Contains(query, "max_owner_days=100000000")
	rq.Contains(query, "last_online_days=3")

	_, err = c.FetchCandidateOwners(t.Context(), q)
	rq.NoError(err)
	rq.EqualValues(3, calls.Load())

	_, err = c.FetchCandidateOwners(t.Context(), entity.OwnerQuery{ItemIDs: []int64{0}})
	rq.True(domain.HasCode(err, errcodes.ValidationError))
}

func TestFetchCandidateOwnersGivesUp(t *testing.T) {
	rq := require.New(t)

	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/common-owners", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})

	_, err := newClient(t, mux).FetchCandidateOwners(t.Context(), entity.OwnerQuery{ItemIDs: []int64{1}})
	rq.Error(err)
	rq.EqualValues(3, calls.Load())
}

func TestEligibilityAndInstances(t *testing.T) {
	rq := require.New(t)

	var instanceBody map[string][]map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/7/can-trade-with", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"canTrade":false,"status":"CannotTradeWithUser"}`)
	})
	mux.HandleFunc("POST /api/instance-ids", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&instanceBody)
		writeJSON(w, http.StatusOK, `{"participants":{"1001":{"instanceIds":["a","b"]},"7":{"instanceIds":["c"]},"x":{}}}`)
	})

	c := newClient(t, mux)

	elig, err := c.CheckEligibility(t.Context(), 7)
	rq.NoError(err)
	rq.Equal(entity.Eligibility{CanTrade: false, Status: "CannotTradeWithUser"}, elig)

	instances, err := c.ResolveInstances(t.Context(), entity.InstanceRequest{
		SenderUserID:  1001,
		SenderItemIDs: []int64{100},
		TargetUserID:  7,
		TargetItemIDs: []int64{200},
		TargetRobux:   50,
	})
	rq.NoError(err)
	rq.Equal(map[int64][]string{1001: {"a", "b"}, 7: {"c"}}, instances)
	rq.Len(instanceBody["trade"], 2)
	rq.EqualValues(50, instanceBody["trade"][1]["robux"])
}

func TestReadsRetryTransientErrors(t *testing.T) {
	rq := require.New(t)

	var eligibilityCalls, instanceCalls, statusCalls, privacyCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/7/can-trade-with", func(w http.ResponseWriter, _ *http.Request) {
		if eligibilityCalls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"canTrade":true,"status":"CanTrade"}`)
	})
	mux.HandleFunc("GET /v1/users/8/can-trade-with", func(w http.ResponseWriter, _ *http.Request) {
		privacyCalls.Add(1)
		writeJSON(w, http.StatusBadRequest, `{"errors":[{"code":22,"message":"privacy"}]}`)
	})
	mux.HandleFunc("POST /api/instance-ids", func(w http.ResponseWriter, _ *http.Request) {
		if instanceCalls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"participants":{"1001":{"instanceIds":["a"]},"7":{"instanceIds":["c"]}}}`)
	})
	mux.HandleFunc("GET /v1/trades/55", func(w http.ResponseWriter, _ *http.Request) {
		if statusCalls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"Completed","isActive":false}`)
	})

	c := newClient(t, mux)

	elig, err := c.CheckEligibility(t.Context(), 7)
	rq.NoError(err)
	rq.True(elig.CanTrade)
	rq.EqualValues(2, eligibilityCalls.Load())

	instances, err := c.ResolveInstances(t.Context(), entity.InstanceRequest{SenderUserID: 1001, TargetUserID: 7})
	rq.NoError(err)
	rq.Equal([]string{"c"}, instances[7])
	rq.EqualValues(2, instanceCalls.Load())

	state, err := c.TradeStatus(t.Context(), entity.MustTradeID("55"))
	rq.NoError(err)
	rq.Equal("Completed", state.Status)
	rq.EqualValues(2, statusCalls.Load())

	_, err = c.CheckEligibility(t.Context(), 8)
	rq.True(domain.HasCode(err, errcodes.PrivacyRestricted))
	rq.EqualValues(1, privacyCalls.Load())
}

func TestReadsGiveUpAfterRetries(t *testing.T) {
	rq := require.New(t)

	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/trades/55", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})

	_, err := newClient(t, mux).TradeStatus(t.Context(), entity.MustTradeID("55"))
	rq.True(platform.IsTransient(err))
	rq.EqualValues(3, calls.Load())
}

func TestOutboundStatusAndDecline(t *testing.T) {
	rq := require.New(t)

	var declined string
	var queries []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/trades/outbound", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)

		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, http.StatusOK, `{"data":[
				{"id":9007199254740993,"created":"2026-03-01T10:00:00Z","status":"Open","isActive":true},
				{"id":null,"created":"2026-03-01T09:00:00Z","status":"Open"}
			],"nextPageCursor":"next"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":[],"nextPageCursor":null}`)
	})
	mux.HandleFunc("GET /v1/trades/55", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"Open","isActive":false}`)
	})
	mux.HandleFunc("POST /v1/trades/{id}/decline", func(w http.ResponseWriter, r *http.Request) {
		declined = r.PathValue("id")
		writeJSON(w, http.StatusOK, `{}`)
	})

	c := newClient(t, mux)

	page, err := c.OutboundPage(t.Context(), "")
	rq.NoError(err)
	rq.Len(page.Trades, 1)
	rq.Equal("9007199254740993", page.Trades[0].ID.String())
	rq.Equal("next", page.NextCursor)

	page, err = c.OutboundPage(t.Context(), "next")
	rq.NoError(err)
	rq.Empty(page.Trades)
	rq.Empty(page.NextCursor)
	rq.Equal([]string{"limit=100&sortOrder=Desc", "cursor=next&limit=100&sortOrder=Desc"}, queries)

	state, err := c.TradeStatus(t.Context(), entity.MustTradeID("55"))
	rq.NoError(err)
	status, ok := state.Normalize()
	rq.True(ok)
	rq.Equal(entity.StatusDeclined, status)

	rq.NoError(c.DeclineTrade(t.Context(), entity.MustTradeID("55")))
	rq.Equal("55", declined)
}
