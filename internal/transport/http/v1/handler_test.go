package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/fastlayer/memory"
	"github.com/xiaot623/gogo/sessiongate/internal/metrics"
	"github.com/xiaot623/gogo/sessiongate/internal/policy"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/venue"
	"github.com/xiaot623/gogo/sessiongate/tests/helpers"
)

type testEnv struct {
	e      *echo.Echo
	h      *Handler
	owner  domain.Identity
	signer domain.Identity
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()

	db := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	controller := custody.NewController(db, memory.New(), nil)
	svc := service.New(db, controller, venue.NewRecorder(), policyEngine, nil, metrics.New(), nil)

	env := &testEnv{e: echo.New(), h: NewHandler(svc)}
	env.owner, _ = helpers.NewKey(t)
	env.signer, _ = helpers.NewKey(t)
	return env
}

// call invokes handler as caller with an optional :id and JSON body.
func (env *testEnv) call(t *testing.T, handler echo.HandlerFunc, caller domain.Identity, method, id string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	auth.WithCaller(c, caller)

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func (env *testEnv) createSession(t *testing.T, exposureCap uint64) string {
	t.Helper()
	rec := env.call(t, env.h.CreateSession, env.owner, http.MethodPost, "", map[string]any{
		"delegated_signer": env.signer,
		"duration_secs":    3600,
		"exposure_cap":     exposureCap,
		"strategies":       []string{"lp_rebalance", "yield_switch"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snap custody.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.CapabilityLP|domain.CapabilityYield, snap.Session.CapabilityMask)
	return snap.SessionID.String()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestHandler(t)

	rec := env.call(t, env.h.CreateSession, env.owner, http.MethodPost, "", map[string]any{"duration_secs": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.call(t, env.h.CreateSession, env.owner, http.MethodPost, "", map[string]any{
		"delegated_signer": env.signer,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.call(t, env.h.CreateSession, env.owner, http.MethodPost, "", map[string]any{
		"delegated_signer": "zz",
		"duration_secs":    10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionFlow(t *testing.T) {
	env := newTestHandler(t)
	id := env.createSession(t, 1000)

	rec := env.call(t, env.h.Delegate, env.signer, http.MethodPost, id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UnauthorizedOwner", decodeError(t, rec))

	rec = env.call(t, env.h.Delegate, env.owner, http.MethodPost, id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.call(t, env.h.Delegate, env.owner, http.MethodPost, id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ProtocolStateViolation", decodeError(t, rec))

	rec = env.call(t, env.h.AuthorizeAction, env.signer, http.MethodPost, id, map[string]any{"kind": "lp_rebalance", "amount": 600})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.call(t, env.h.AuthorizeAction, env.signer, http.MethodPost, id, map[string]any{"kind": "lp_rebalance", "amount": 500})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ExposureLimitExceeded", decodeError(t, rec))

	rec = env.call(t, env.h.AuthorizeAction, env.signer, http.MethodPost, id, map[string]any{"kind": "liquidation_protect"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "StrategyNotEnabled", decodeError(t, rec))

	rec = env.call(t, env.h.AuthorizeAction, env.signer, http.MethodPost, id, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.call(t, env.h.Checkpoint, env.signer, http.MethodPost, id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var commit custody.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commit))
	assert.True(t, commit.Changed)
	assert.Equal(t, uint64(600), commit.Session.CumulativeSpend)

	rec = env.call(t, env.h.Undelegate, env.owner, http.MethodPost, id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.call(t, env.h.AuthorizeAction, env.signer, http.MethodPost, id, map[string]any{"kind": "lp_rebalance"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SessionInactive", decodeError(t, rec))

	rec = env.call(t, env.h.ListEvents, env.owner, http.MethodGet, id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	var types []domain.EventType
	for _, e := range events.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventTypeSessionCreated,
		domain.EventTypeSessionDelegated,
		domain.EventTypeActionAuthorized,
		domain.EventTypeActionRejected,
		domain.EventTypeActionRejected,
		domain.EventTypeSessionCommitted,
		domain.EventTypeSessionUndelegated,
		domain.EventTypeActionRejected,
	}, types)
}

func TestGetSessionErrors(t *testing.T) {
	env := newTestHandler(t)

	rec := env.call(t, env.h.GetSession, env.owner, http.MethodGet, "not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.call(t, env.h.GetSession, env.owner, http.MethodGet, uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SessionNotFound", decodeError(t, rec))
}

func TestVenueRoutes(t *testing.T) {
	env := newTestHandler(t)
	id := env.createSession(t, 1000)

	rec := env.call(t, env.h.Swap, env.signer, http.MethodPost, id, map[string]any{"amount_in": 100})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "VenueRejected", decodeError(t, rec))

	rec = env.call(t, env.h.Swap, env.signer, http.MethodPost, id, map[string]any{"amount_in": 100, "min_amount_out": 99})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.call(t, env.h.AddLiquidity, env.signer, http.MethodPost, id, map[string]any{"amount_a": 200, "amount_b": 300})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res service.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, uint64(500), res.Delta)
	assert.Equal(t, uint64(600), res.Session.CumulativeSpend)

	rec = env.call(t, env.h.ClosePosition, env.signer, http.MethodPost, id, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, uint64(600), res.Session.CumulativeSpend)
	assert.Equal(t, uint64(3), res.Session.TotalActions)
}

func TestMonitorRoutes(t *testing.T) {
	env := newTestHandler(t)
	id := env.createSession(t, 1000)

	rec := env.call(t, env.h.RegisterMonitor, env.owner, http.MethodPost, id, map[string]any{"min_bound": 10, "max_bound": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "InvalidRange", decodeError(t, rec))

	rec = env.call(t, env.h.GetMonitor, env.owner, http.MethodGet, id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.call(t, env.h.RegisterMonitor, env.owner, http.MethodPost, id, map[string]any{"min_bound": 5, "max_bound": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.call(t, env.h.RegisterMonitor, env.owner, http.MethodPost, id, map[string]any{"min_bound": 5, "max_bound": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.call(t, env.h.CheckpointMonitor, env.signer, http.MethodPost, id, map[string]any{"observed_value": 12, "fee_a": 1, "fee_b": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res service.MonitorResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Alert)
	assert.Equal(t, domain.TransitionExitedRange, res.Transition)
	assert.False(t, res.Monitor.IsInRange)

	rec = env.call(t, env.h.GetMonitor, env.owner, http.MethodGet, id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"last_observed_value":%d`, 12))
}

func TestListSessions(t *testing.T) {
	env := newTestHandler(t)
	env.createSession(t, 1)
	env.createSession(t, 2)

	rec := env.call(t, env.h.ListSessions, env.owner, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []custody.Snapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 2)

	rec = env.call(t, env.h.ListSessions, env.signer, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Sessions)
}
