package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"payrank-backend/config"
	"payrank-backend/internal/api"
	"payrank-backend/internal/metrics"
	"payrank-backend/internal/models"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/payment/demo"
	"payrank-backend/internal/services"
	"payrank-backend/internal/store"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testLedgerSecret  = "test-ledger-secret"
	testWebhookSecret = "whsec_test"
)

type testServer struct {
	router   *gin.Engine
	store    store.Store
	driver   *demo.Driver
	notifier *services.Notifier
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zap.NewNop()
	st := store.NewMemoryStore()

	hub := notify.NewHub(log, m, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	notifier := services.NewNotifier(hub, st, log, m)
	t.Cleanup(notifier.Wait)

	users := services.NewUserService(st, nil, log)
	driver := demo.NewDriver(testWebhookSecret)
	settlement := services.NewSettlementService(st, driver, notifier, users, services.SettlementConfig{
		LedgerSecret: testLedgerSecret,
		RetryDelay:   time.Millisecond,
	}, log, m)

	router := api.NewRouter(api.Deps{
		Config:      &config.Config{JWTSecret: testJWTSecret, CORSOrigins: []string{"http://localhost:5173"}},
		Log:         log,
		Gatherer:    reg,
		Hub:         hub,
		Driver:      driver,
		Users:       users,
		Settlement:  settlement,
		Leaderboard: services.NewLeaderboardService(st, services.LeaderboardConfig{}),
		Ledger:      services.NewLedgerService(st, testLedgerSecret),
		Heartbeat:   time.Hour,
	})

	return &testServer{router: router, store: st, driver: driver, notifier: notifier}
}

func (s *testServer) user(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	u := &models.User{Username: name}
	require.NoError(t, s.store.CreateUser(context.Background(), u))
	token, err := utils.GenerateToken(testJWTSecret, u.ID, utils.RoleUser, time.Hour)
	require.NoError(t, err)
	return u, token
}

func (s *testServer) admin(t *testing.T) string {
	t.Helper()
	u := &models.User{Username: "root"}
	require.NoError(t, s.store.CreateUser(context.Background(), u))
	token, err := utils.GenerateToken(testJWTSecret, u.ID, utils.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), demo.Name)

	w, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payrank_settlement_duration_seconds")
}

func TestProcessPaymentClimbsLeaderboard(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.user(t, "alice")
	_, bobToken := s.user(t, "bob")

	w, env := s.do(t, http.MethodPost, "/api/v1/payments", aliceToken, gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.SettlementResult
	decode(t, env, &res)
	assert.Equal(t, models.PaymentStatusCompleted, res.Status)
	assert.True(t, res.NewTotal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"Newcomer"}, res.NewBadges)
	assert.Equal(t, 1, res.RankAfter)
	assert.True(t, strings.HasPrefix(res.Reference, "demo_"))

	w, _ = s.do(t, http.MethodPost, "/api/v1/payments", bobToken, gin.H{"amount": 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodGet, "/api/v1/leaderboard/global", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board services.Board
	decode(t, env, &board)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "alice", board.Entries[0].Username)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 2, board.Entries[1].Rank)
	assert.Equal(t, int64(2), board.Total)

	w, env = s.do(t, http.MethodGet, "/api/v1/users/me", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		ID         uint            `json:"id"`
		TotalSpent decimal.Decimal `json:"totalSpent"`
		Rank       int             `json:"currentRank"`
		Badges     []string        `json:"badges"`
	}
	decode(t, env, &me)
	assert.Equal(t, alice.ID, me.ID)
	assert.True(t, me.TotalSpent.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, me.Rank)
	assert.Equal(t, []string{"Newcomer"}, me.Badges)

	w, env = s.do(t, http.MethodGet, "/api/v1/leaderboard/position", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pos services.Position
	decode(t, env, &pos)
	assert.Equal(t, 2, pos.Global.Rank)
	assert.Equal(t, 2, pos.Weekly.Rank)

	w, env = s.do(t, http.MethodGet, "/api/v1/leaderboard/nearby?above=1&below=1", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nearby services.Nearby
	decode(t, env, &nearby)
	require.Len(t, nearby.Above, 1)
	assert.Equal(t, alice.ID, nearby.Above[0].ID)
	assert.Empty(t, nearby.Below)

	w, env = s.do(t, http.MethodGet, "/api/v1/payments/history", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history services.PaymentPage
	decode(t, env, &history)
	assert.Equal(t, int64(1), history.Total)
}

func TestProcessPaymentErrors(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user(t, "alice")

	tests := []struct {
		name   string
		token  string
		body   interface{}
		status int
	}{
		{"no token", "", gin.H{"amount": "10"}, http.StatusUnauthorized},
		{"bad token", "garbage", gin.H{"amount": "10"}, http.StatusUnauthorized},
		{"zero amount", token, gin.H{"amount": "0"}, http.StatusBadRequest},
		{"negative amount", token, gin.H{"amount": -5}, http.StatusBadRequest},
		{"missing amount", token, gin.H{}, http.StatusBadRequest},
		{"bad currency", token, gin.H{"amount": "10", "currency": "XXXX"}, http.StatusBadRequest},
		{"declined", token, gin.H{"amount": "10", "paymentMethod": demo.DeclineMethod}, http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/v1/payments", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.status, env.Status)
		})
	}
}

func TestWebhookSettlesOnce(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.user(t, "alice")

	payload, err := json.Marshal(gin.H{
		"type":      "confirmed",
		"reference": "pay_123",
		"userId":    alice.ID,
		"amount":    "999",
	})
	require.NoError(t, err)
	sig := s.driver.Sign(payload)

	for i := 0; i < 2; i++ {
		w, env := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Payrank-Signature", sig)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, string(env.Data), `"received":true`)
	}

	w, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Payrank-Signature", "bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ignored := []byte(`{"type":"charge.updated","reference":"pay_999"}`)
	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", ignored, "X-Payrank-Signature", s.driver.Sign(ignored))
	assert.Equal(t, http.StatusOK, w.Code)

	_, env := s.do(t, http.MethodGet, "/api/v1/payments/history", aliceToken, nil)
	var history services.PaymentPage
	decode(t, env, &history)
	require.Equal(t, int64(1), history.Total)
	assert.True(t, history.Payments[0].Amount.Equal(decimal.NewFromInt(999)))

	// 999 + 1 crosses the Enthusiast threshold.
	w, env = s.do(t, http.MethodPost, "/api/v1/payments", aliceToken, gin.H{"amount": "1"})
	require.Equal(t, http.StatusOK, w.Code)
	var res services.SettlementResult
	decode(t, env, &res)
	assert.Equal(t, []string{"Enthusiast"}, res.NewBadges)
}

func TestCurrentUserRankFollowsOvertakes(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.user(t, "alice")
	_, bobToken := s.user(t, "bob")

	w, _ := s.do(t, http.MethodPost, "/api/v1/payments", bobToken, gin.H{"amount": "40"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me struct {
		Rank int `json:"currentRank"`
	}
	_, env := s.do(t, http.MethodGet, "/api/v1/users/me", bobToken, nil)
	decode(t, env, &me)
	assert.Equal(t, 1, me.Rank)

	w, _ = s.do(t, http.MethodPost, "/api/v1/payments", aliceToken, gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodGet, "/api/v1/users/me", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env, &me)
	assert.Equal(t, 2, me.Rank)
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	s := newTestServer(t)
	alice, _ := s.user(t, "alice")

	forged := []byte(`{"type":"confirmed","reference":"forged_1","userId":` + itoa(alice.ID) + `,"amount":"1000000"}`)

	w, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", forged)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unkeyed := demo.NewDriver("")
	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", forged, "X-Payrank-Signature", unkeyed.Sign(forged))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	u, err := s.store.FindUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, u.CumulativeSpend.IsZero())

	_, err = s.store.FindPaymentByReference(context.Background(), "forged_1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTiedUsersShareRank(t *testing.T) {
	s := newTestServer(t)
	_, a := s.user(t, "alice")
	_, b := s.user(t, "bob")

	for _, token := range []string{a, b} {
		w, _ := s.do(t, http.MethodPost, "/api/v1/payments", token, gin.H{"amount": "500"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := s.do(t, http.MethodGet, "/api/v1/leaderboard/top?limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var top struct {
		Users []services.Entry `json:"users"`
	}
	decode(t, env, &top)
	require.Len(t, top.Users, 2)
	assert.Equal(t, 1, top.Users[0].Rank)
	assert.Equal(t, 1, top.Users[1].Rank)

	w, _ = s.do(t, http.MethodGet, "/api/v1/leaderboard/top?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user(t, "alice")

	w, _ := s.do(t, http.MethodPatch, "/api/v1/users/me", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodPatch, "/api/v1/users/me", token, gin.H{"displayName": "Queen A", "isAnonymous": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		DisplayName string `json:"displayName"`
		IsAnonymous bool   `json:"isAnonymous"`
	}
	decode(t, env, &me)
	assert.Equal(t, "Queen A", me.DisplayName)
	assert.True(t, me.IsAnonymous)

	w, _ = s.do(t, http.MethodPost, "/api/v1/payments", token, gin.H{"amount": "5"})
	require.Equal(t, http.StatusOK, w.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/leaderboard/global", "", nil)
	var board services.Board
	decode(t, env, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "Anonymous User", board.Entries[0].DisplayName)
	assert.NotEqual(t, "alice", board.Entries[0].Username)
}

func TestAdminRefundAndLedger(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.user(t, "alice")
	adminToken := s.admin(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/payments", aliceToken, gin.H{"amount": "1200"})
	require.Equal(t, http.StatusOK, w.Code)
	var paid services.SettlementResult
	decode(t, env, &paid)

	refundPath := "/api/v1/admin/payments/" + itoa(paid.PaymentID) + "/refund"

	w, _ = s.do(t, http.MethodPost, refundPath, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, http.MethodPost, refundPath, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refund services.RefundResult
	decode(t, env, &refund)
	assert.True(t, refund.NewTotal.IsZero())
	assert.False(t, refund.Duplicate)

	w, env = s.do(t, http.MethodPost, refundPath, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env, &refund)
	assert.True(t, refund.Duplicate)

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/payments/9999/refund", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/admin/payments/confirm", adminToken, gin.H{
		"reference": "manual_1",
		"userId":    alice.ID,
		"amount":    "50",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var manual services.SettlementResult
	decode(t, env, &manual)
	assert.True(t, manual.NewTotal.Equal(decimal.NewFromInt(50)))

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/payments/fail", adminToken, gin.H{"reference": "manual_1", "reason": "chargeback"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/ledger?user_id="+itoa(alice.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Entries []struct {
			Type     string `json:"type"`
			Operator string `json:"operator"`
		} `json:"entries"`
		Total int64 `json:"total"`
	}
	decode(t, env, &list)
	assert.Equal(t, int64(3), list.Total)

	operators := map[string]string{}
	for _, e := range list.Entries {
		operators[e.Type+"/"+e.Operator] = e.Operator
	}
	assert.Contains(t, operators, "refund/root")
	assert.Contains(t, operators, "settlement/root")

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/ledger?type=bogus", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/ledger/export?type=refund", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=ledger_")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "-1200.00")

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/ledger/verify", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tampered":[]}`, string(env.Data))
}

func TestLeaderboardStream(t *testing.T) {
	s := newTestServer(t)
	alice, token := s.user(t, "alice")

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/users/me/stream?access_token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	w, _ := s.do(t, http.MethodPost, "/api/v1/payments", token, gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, w.Code)

	type sse struct{ event, data string }
	events := make(chan sse, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var cur sse
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				cur.event = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				cur.data = strings.TrimPrefix(line, "data:")
				events <- cur
				return
			}
		}
	}()

	select {
	case ev := <-events:
		assert.Equal(t, notify.EventLeaderboardUpdate, ev.event)
		var update notify.LeaderboardUpdate
		require.NoError(t, json.Unmarshal([]byte(ev.data), &update))
		assert.Equal(t, alice.ID, update.UserID)
		assert.Equal(t, 1, update.NewRank)
		assert.True(t, update.NewTotalSpent.Equal(decimal.NewFromInt(100)))
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
