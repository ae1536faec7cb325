package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/deepmed-api/internal/config"
	authh "github.com/jwalitptl/deepmed-api/internal/handler/auth"
	"github.com/jwalitptl/deepmed-api/internal/handler/health"
	patienth "github.com/jwalitptl/deepmed-api/internal/handler/patient"
	placesh "github.com/jwalitptl/deepmed-api/internal/handler/places"
	promh "github.com/jwalitptl/deepmed-api/internal/handler/prometheus"
	"github.com/jwalitptl/deepmed-api/internal/middleware"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository/memory"
	authsvc "github.com/jwalitptl/deepmed-api/internal/service/auth"
	"github.com/jwalitptl/deepmed-api/internal/service/patient"
	"github.com/jwalitptl/deepmed-api/internal/service/places"
	"github.com/jwalitptl/deepmed-api/internal/service/prediction"
	"github.com/jwalitptl/deepmed-api/pkg/auth"
	"github.com/jwalitptl/deepmed-api/pkg/metrics"
	"github.com/jwalitptl/deepmed-api/pkg/security"
)

const ashaBody = `{"name":"Asha","phone":"555-0101","address":"12 Lake Rd","symptoms":"fever, cough"}`

type testServer struct {
	engine *gin.Engine
	repo   *memory.PatientRepo
	outbox *memory.OutboxRepo
}

func newTestServer(t *testing.T, withAdmin bool, limit rate.Limit) *testServer {
	t.Helper()
	require.NoError(t, middleware.RegisterValidators())

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(provider.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("deepmed", "", reg)

	repo := memory.NewPatientRepo()
	outbox := memory.NewOutboxRepo()
	predictor := prediction.NewClient(config.LLMConfig{BaseURL: provider.URL, APIKey: "key", Timeout: time.Second}, nil, m)
	patientSvc := patient.NewService(repo, outbox, predictor, nil)
	placesSvc := places.NewService(config.PlacesConfig{OverpassURL: provider.URL, Timeout: time.Second}, nil, m)

	handlers := Handlers{
		Patient: patienth.NewHandler(patientSvc),
		Places:  placesh.NewHandler(placesSvc),
		Health:  health.NewHandler(nil),
		Metrics: promh.New(reg),
	}

	var authMW *middleware.AuthMiddleware
	if withAdmin {
		hasher := security.NewBcryptHasher(bcrypt.MinCost)
		hash, err := hasher.Hash("correct horse battery")
		require.NoError(t, err)
		svc := authsvc.NewService(config.AdminConfig{Username: "admin", PasswordHash: hash}, hasher, auth.NewJWTService("secret", time.Hour), nil)
		handlers.Auth = authh.NewHandler(svc)
		authMW = middleware.NewAuthMiddleware(svc)
	}

	r := NewRouter(handlers, authMW, RouterConfig{
		RateLimitEnabled: limit > 0,
		RateLimit:        limit,
		RateBurst:        1,
		CORSConfig:       middleware.DefaultCORSConfig(),
	})
	r.Setup()
	return &testServer{engine: r.Engine(), repo: repo, outbox: outbox}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestRouter_PredictMounts(t *testing.T) {
	s := newTestServer(t, false, 0)

	for _, path := range []string{"/api/patients/predict", "/api/predict"} {
		w := s.do(http.MethodPost, path, ashaBody, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "fallback", w.Header().Get(middleware.HeaderPredictionSource), path)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID), path)
	}
	assert.Equal(t, 1, s.repo.Len())

	events := s.outbox.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventPredictionRecorded, events[0].EventType)
}

func TestRouter_PublicRoutes(t *testing.T) {
	s := newTestServer(t, false, 0)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/places", "", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, s.do(http.MethodPost, "/api/places/nearby", "{}", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/patients/history?name=Asha&phone=555-0101", "", nil).Code)

	w := s.do(http.MethodPost, "/api/places/nearby-free", `{"lat":12.97,"lng":77.59}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
	assert.Contains(t, w.Body.String(), "deepmed_places_lookups_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, false, 0)
	w := s.do(http.MethodOptions, "/api/patients/predict", "", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimitsPredictions(t *testing.T) {
	s := newTestServer(t, false, rate.Limit(0.001))

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/predict", ashaBody, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/predict", ashaBody, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/places", "", nil).Code)
}

func TestRouter_AdminDisabled(t *testing.T) {
	s := newTestServer(t, false, 0)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/admin/patients", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/admin/login", `{}`, nil).Code)
}

func TestRouter_AdminFlow(t *testing.T) {
	s := newTestServer(t, true, 0)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/predict", ashaBody, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/patients", "", nil).Code)

	w := s.do(http.MethodPost, "/api/admin/login", `{"username":"admin","password":"correct horse battery"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var token model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	bearer := map[string]string{"Authorization": "Bearer " + token.AccessToken}

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/admin/patients", "", bearer).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/admin/patients/555-0101", "", bearer).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/admin/patients/555-0101", "", bearer).Code)
	assert.Equal(t, 0, s.repo.Len())
}
