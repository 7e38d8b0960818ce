package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/vault"
	"trade_engine/internal/infrastructure/persistence"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/internal/server"
	"trade_engine/internal/worker"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/rest"
	"trade_engine/pkg/tests"
)

const (
	accountID = "1001"
	testSeed  = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
)

type fakeSendAll struct {
	running   bool
	started   []string
	stopCalls int
}

func (f *fakeSendAll) Start(_ context.Context, templateID string) bool {
	if f.running {
		return false
	}
	f.running = true
	f.started = append(f.started, templateID)
	return true
}

func (f *fakeSendAll) Stop()           { f.stopCalls++; f.running = false }
func (f *fakeSendAll) IsRunning() bool { return f.running }

type fakeDecliner struct {
	declined []string
}

func (f *fakeDecliner) Decline(_ context.Context, templateID string) (worker.DeclineResult, error) {
	f.declined = append(f.declined, templateID)
	return worker.DeclineResult{Total: 2, Declined: 2}, nil
}

func (f *fakeDecliner) Stop()           {}
func (f *fakeDecliner) IsRunning() bool { return false }

type fakeReconciler struct{}

func (fakeReconciler) Reconcile(context.Context) (worker.ReconcileResult, error) {
	return worker.ReconcileResult{Pending: 3, Checked: 2, Finalized: 1, Notified: 1}, nil
}

type env struct {
	client     tests.APIClient
	sendAll    *fakeSendAll
	decliner   *fakeDecliner
	trades     *persistence.TradeRepository
	exclusions *persistence.ExclusionRepository
	passwords  *vault.PasswordCache
}

func newEnv(t *testing.T) env {
	t.Helper()

	store := storage.New(context.Background(), storage.NewMemory())
	templates := persistence.NewTemplateRepository(store, accountID)
	trades := persistence.NewTradeRepository(store, accountID)
	exclusions := persistence.NewExclusionRepository(store, accountID)
	v := vault.New(store).WithIterations(1000)
	passwords := vault.NewPasswordCache(time.Minute)

	sendAll := &fakeSendAll{}
	decliner := &fakeDecliner{}

	srv := server.NewServer(
		server.NewEngineServer(sendAll, decliner, fakeReconciler{}, trades, templates, v, passwords, accountID),
		server.NewTemplateServer(templates),
		server.NewTradeServer(trades, exclusions),
		server.NewVaultServer(v, passwords, accountID),
	)

	ts := httptest.NewServer(server.NewRouter(srv, []string{"*"}))
	t.Cleanup(ts.Close)

	return env{
		client:     tests.NewAPIClient(ts.URL, ts.Client()),
		sendAll:    sendAll,
		decliner:   decliner,
		trades:     trades,
		exclusions: exclusions,
		passwords:  passwords,
	}
}

func validTemplate() rest.Template {
	return rest.Template{
		Name:           "fedora for valk",
		GivingItems:    []rest.Item{{ID: 1, Name: "Fedora"}},
		ReceivingItems: []rest.Item{{ID: 2, Name: "Valkyrie"}},
		DailyGoal:      5,
	}
}

func TestTemplatesCRUD(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	var created rest.Template
	resp, err := e.client.Post(ctx, "/v1/templates", nil, validTemplate(), &created, nil)
	rq.NoError(err)
	rq.Equal(http.StatusCreated, resp.StatusCode)
	rq.NotEmpty(created.ID)
	rq.Equal("incomplete", created.Status)

	update := validTemplate()
	update.DailyGoal = 9
	var updated rest.Template
	resp, err = e.client.Put(ctx, "/v1/templates/"+created.ID, nil, update, &updated, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Equal(9, updated.DailyGoal)
	rq.Equal(created.CreatedAt.Unix(), updated.CreatedAt.Unix())

	var list []rest.Template
	resp, err = e.client.Get(ctx, "/v1/templates", nil, &list, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Len(list, 1)

	resp, err = e.client.Delete(ctx, "/v1/templates/"+created.ID, nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)

	var apiErr rest.Error
	resp, err = e.client.Get(ctx, "/v1/templates/"+created.ID, nil, nil, &apiErr)
	rq.NoError(err)
	rq.Equal(http.StatusNotFound, resp.StatusCode)
	rq.Equal(rest.ErrorCode(errcodes.TemplateNotFound), apiErr.Code)
}

func TestTemplateValidation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(tpl *rest.Template)
	}{
		{name: "no name", mutate: func(tpl *rest.Template) { tpl.Name = "" }},
		{name: "no receiving", mutate: func(tpl *rest.Template) { tpl.ReceivingItems = nil }},
		{name: "zero goal", mutate: func(tpl *rest.Template) { tpl.DailyGoal = 0 }},
		{name: "negative robux", mutate: func(tpl *rest.Template) { tpl.RobuxGet = -1 }},
		{name: "too many items", mutate: func(tpl *rest.Template) {
			tpl.GivingItems = []rest.Item{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			e := newEnv(t)

			tpl := validTemplate()
			tc.mutate(&tpl)

			var apiErr rest.Error
			resp, err := e.client.Post(context.Background(), "/v1/templates", nil, tpl, nil, &apiErr)
			rq.NoError(err)
			rq.Equal(http.StatusBadRequest, resp.StatusCode)
			rq.Equal(rest.ErrorCode(errcodes.ValidationError), apiErr.Code)
		})
	}
}

func TestSendAllControl(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	var started rest.SendAllResponse
	resp, err := e.client.Post(ctx, "/v1/sendall", nil, rest.SendAllRequest{TemplateID: "tpl-1"}, &started, nil)
	rq.NoError(err)
	rq.Equal(http.StatusAccepted, resp.StatusCode)
	rq.True(started.Started)
	rq.Equal([]string{"tpl-1"}, e.sendAll.started)

	var apiErr rest.Error
	resp, err = e.client.Post(ctx, "/v1/sendall", nil, rest.SendAllRequest{}, nil, &apiErr)
	rq.NoError(err)
	rq.Equal(http.StatusConflict, resp.StatusCode)
	rq.Equal(rest.ErrorCode(errcodes.AlreadyRunning), apiErr.Code)

	var status rest.Status
	_, err = e.client.Get(ctx, "/v1/status", nil, &status, nil)
	rq.NoError(err)
	rq.True(status.Sending)
	rq.False(status.SecretEnrolled)

	resp, err = e.client.Delete(ctx, "/v1/sendall", nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Equal(1, e.sendAll.stopCalls)
}

func TestReconcileAndDecline(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	var res rest.ReconcileResult
	resp, err := e.client.Post(ctx, "/v1/reconcile", nil, struct{}{}, &res, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Equal(rest.ReconcileResult{Pending: 3, Checked: 2, Finalized: 1, Notified: 1}, res)

	var declined rest.DeclineResult
	resp, err = e.client.Post(ctx, "/v1/templates/tpl-9/decline", nil, struct{}{}, &declined, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Equal(2, declined.Declined)
	rq.Equal([]string{"tpl-9"}, e.decliner.declined)
}

func TestTradesAndExclusions(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	rq.NoError(e.trades.AddPending(ctx, entity.PendingTrade{
		ID:           entity.MustTradeID("123456789012345678901"),
		TemplateID:   "tpl",
		TargetUserID: 7,
		CreatedAt:    time.Now(),
		Status:       entity.StatusOutbound,
	}))
	rq.NoError(e.exclusions.Add(ctx, 77))

	var pending []rest.PendingTrade
	_, err := e.client.Get(ctx, "/v1/trades/pending", nil, &pending, nil)
	rq.NoError(err)
	rq.Len(pending, 1)
	rq.Equal("123456789012345678901", pending[0].ID)

	var finalized []rest.FinalizedTrade
	_, err = e.client.Get(ctx, "/v1/trades/finalized", nil, &finalized, nil)
	rq.NoError(err)
	rq.Empty(finalized)

	var exclusions rest.Exclusions
	_, err = e.client.Get(ctx, "/v1/exclusions", nil, &exclusions, nil)
	rq.NoError(err)
	rq.Equal([]int64{77}, exclusions.UserIDs)

	resp, err := e.client.Delete(ctx, "/v1/exclusions/77", nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)

	resp, err = e.client.Delete(ctx, "/v1/exclusions/abc", nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusBadRequest, resp.StatusCode)

	excluded, err := e.exclusions.IsExcluded(ctx, 77)
	rq.NoError(err)
	rq.False(excluded)
}

func TestVaultEndpoints(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	var apiErr rest.Error
	resp, err := e.client.Put(ctx, "/v1/vault/password", nil, rest.PasswordRequest{Password: "pw"}, nil, &apiErr)
	rq.NoError(err)
	rq.Equal(http.StatusNotFound, resp.StatusCode)
	rq.Equal(rest.ErrorCode(errcodes.SecretNotFound), apiErr.Code)

	resp, err = e.client.Post(ctx, "/v1/vault/secret", nil, rest.EnrollRequest{Seed: testSeed, Password: "pw"}, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusCreated, resp.StatusCode)
	rq.True(e.passwords.Has(accountID))

	resp, err = e.client.Delete(ctx, "/v1/vault/password", nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.False(e.passwords.Has(accountID))

	apiErr = rest.Error{}
	resp, err = e.client.Put(ctx, "/v1/vault/password", nil, rest.PasswordRequest{Password: "wrong"}, nil, &apiErr)
	rq.NoError(err)
	rq.Equal(http.StatusUnauthorized, resp.StatusCode)
	rq.Equal(rest.ErrorCode(errcodes.InvalidPassword), apiErr.Code)

	resp, err = e.client.Put(ctx, "/v1/vault/password", nil, rest.PasswordRequest{Password: "pw"}, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.True(e.passwords.Has(accountID))

	resp, err = e.client.Delete(ctx, "/v1/vault/secret", nil, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.False(e.passwords.Has(accountID))
}
