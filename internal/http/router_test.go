package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	httpH "github.com/yungbote/clusterforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/clusterforge-backend/internal/http/middleware"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
	"github.com/yungbote/clusterforge-backend/internal/realtime/bus"
	"github.com/yungbote/clusterforge-backend/internal/services"
)

type api struct {
	router *gin.Engine
	db     *gorm.DB
	auth   services.AuthService
	owner  uuid.UUID
	token  string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	events := realtime.NewEmitter(bus.NewMemoryBus(), log)
	machine := state.NewMachine(rs.Cluster, state.NewMemoryLocker(), time.Hour, log)
	metrics := observability.NewPrometheusRecorder(nil)
	ledger := billing.NewLedger(db, rs.Account, rs.Transaction, 0, metrics, log)
	jobSvc := services.NewJobService(db, log, rs.JobRun, events, nil)
	auth := services.NewAuthService(log, "test-secret")

	a := &api{db: db, auth: auth, owner: uuid.New()}
	a.router = NewRouter(RouterConfig{
		Log:            log,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
		AuthMiddleware: httpMW.NewAuthMiddleware(log, auth),
		ClusterHandler: httpH.NewClusterHandler(
			services.NewClusterService(db, log, rs, jobSvc),
			services.NewGenerationService(db, log, rs, ledger, machine, jobSvc, events),
		),
		BillingHandler: httpH.NewBillingHandler(ledger),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
	token, err := auth.IssueToken(a.owner, time.Hour)
	require.NoError(t, err)
	a.token = token
	return a
}

func (a *api) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	envelope, ok := decode(t, rec)["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	code, _ := envelope["code"].(string)
	return code
}

func (a *api) seed(t *testing.T, balance int64, pages int) *cluster.Cluster {
	t.Helper()
	testutil.SeedAccount(t, a.db, a.owner, balance)
	c := testutil.SeedCluster(t, a.db, a.owner, cluster.StatusConfiguring, pages)
	testutil.SeedPages(t, a.db, c.ID, pages, cluster.IntentInformational)
	return c
}

func TestPublicEndpoints(t *testing.T) {
	a := newAPI(t)
	a.token = ""

	rec := a.do(t, nethttp.MethodGet, "/healthcheck", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = a.do(t, nethttp.MethodGet, "/metrics", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clusterforge_http_requests_total")

	rec = a.do(t, nethttp.MethodGet, "/api/billing/balance", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestRejectsForeignToken(t *testing.T) {
	a := newAPI(t)
	other := services.NewAuthService(testutil.Logger(t), "another-secret")
	token, err := other.IssueToken(a.owner, time.Hour)
	require.NoError(t, err)
	a.token = token

	rec := a.do(t, nethttp.MethodGet, "/api/billing/balance", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
}

func TestGenerateLifecycle(t *testing.T) {
	a := newAPI(t)
	c := a.seed(t, 10_000, 2)
	base := "/api/clusters/" + c.ID.String()

	rec := a.do(t, nethttp.MethodPost, base+"/generate", nil)
	require.Equal(t, nethttp.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, string(cluster.StatusGenerating), body["status"])
	assert.EqualValues(t, 2*billing.DefaultPageCents, body["amount"])
	assert.NotEmpty(t, body["job_id"])

	rec = a.do(t, nethttp.MethodPost, base+"/generate", nil)
	assert.Equal(t, nethttp.StatusConflict, rec.Code)
	assert.Equal(t, "job_locked", errorCode(t, rec))

	rec = a.do(t, nethttp.MethodGet, base+"/generation", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, string(cluster.StatusGenerating), body["status"])
	assert.NotNil(t, body["job"])

	rec = a.do(t, nethttp.MethodPost, base+"/cancel", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, nethttp.MethodGet, base+"/generation", nil)
	assert.Equal(t, string(cluster.StatusGenerationFailed), decode(t, rec)["status"])

	rec = a.do(t, nethttp.MethodGet, "/api/billing/balance", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.EqualValues(t, 10_000, decode(t, rec)["balance_cents"])
}

func TestGenerateErrors(t *testing.T) {
	a := newAPI(t)
	poor := a.seed(t, 10, 2)

	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"insufficient balance", "/api/clusters/" + poor.ID.String() + "/generate", nethttp.StatusPaymentRequired, "insufficient_balance"},
		{"unknown cluster", "/api/clusters/" + uuid.NewString() + "/generate", nethttp.StatusNotFound, "cluster_not_found"},
		{"bad id", "/api/clusters/nope/generate", nethttp.StatusBadRequest, "invalid_cluster_id"},
		{"cancel idle cluster", "/api/clusters/" + poor.ID.String() + "/cancel", nethttp.StatusConflict, "not_allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, nethttp.MethodPost, tc.path, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestCreateCluster(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, nethttp.MethodPost, "/api/clusters", map[string]any{
		"keyword":       "pour over",
		"topics_number": 6,
		"language":      "EN",
	})
	require.Equal(t, nethttp.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["job_id"])
	created, ok := body["cluster"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(cluster.StatusDraft), created["status"])
	assert.Equal(t, "en", created["language"])

	rec = a.do(t, nethttp.MethodPost, "/api/clusters", map[string]any{"keyword": "", "topics_number": 6})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))
}
