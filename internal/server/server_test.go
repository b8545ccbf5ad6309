package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/allocator"
	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/cache"
	"github.com/Rat-cell/lockerhub/internal/lifecycle"
	"github.com/Rat-cell/lockerhub/internal/notify/mocks"
	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/repository/memory"
)

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Entry) {}

type fixture struct {
	store   *memory.Store
	handler http.Handler
	sender  *mocks.MockSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	logger := zap.NewNop()
	sender := mocks.NewMockSender(ctrl)

	alloc := allocator.New(store, store.Lockers(), nopRecorder{}, logger)
	svc := lifecycle.New(store, store.Parcels(), store.Lockers(), alloc, nopRecorder{}, sender, logger, lifecycle.Options{
		PinValidity:            24 * time.Hour,
		TokenValidity:          24 * time.Hour,
		MaxDailyPinGenerations: 3,
		PublicBaseURL:          "http://localhost:9000",
	})

	lockerCache := cache.NewLockerCache(store.Lockers())
	require.NoError(t, lockerCache.LoadInitialData(context.Background()))

	srv := New(svc, store.Users(), lockerCache, NewAuditRecorderSink(nopRecorder{}), logger)
	return &fixture{store: store, handler: srv.setupRoutes(), sender: sender}
}

func (f *fixture) addLocker(t *testing.T, id string, size repository.LockerSize) {
	t.Helper()
	require.NoError(t, f.store.Lockers().Create(context.Background(), &repository.Locker{
		ID:       id,
		Location: "bank A / " + id,
		Size:     size,
		Status:   repository.LockerFree,
	}))
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestDepositAndPickupOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)
	f.sender.EXPECT().Send(gomock.Any(), "a@b.c", gomock.Any(), gomock.Any()).Return(nil)

	rec := f.do(t, http.MethodPost, "/api/v1/parcels", map[string]string{
		"size":            "medium",
		"recipient_email": "a@b.c",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	pin, ok := body["pin"].(string)
	require.True(t, ok)
	assert.Len(t, pin, 6)

	rec = f.do(t, http.MethodPost, "/api/v1/pickup", map[string]string{"pin": pin})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	parcel := body["parcel"].(map[string]interface{})
	assert.Equal(t, "picked_up", parcel["status"])
}

func TestDepositNoAvailabilityReturnsConflict(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/parcels", map[string]string{
		"size":            "small",
		"recipient_email": "a@b.c",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDepositBadInput(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)

	rec := f.do(t, http.MethodPost, "/api/v1/parcels", map[string]string{
		"size":            "medium",
		"recipient_email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/parcels", map[string]string{
		"size":            "enormous",
		"recipient_email": "a@b.c",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPickupInvalidPinUnauthorized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/pickup", map[string]string{"pin": "123456"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGeneratePinFromTokenOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)
	f.sender.EXPECT().Send(gomock.Any(), "a@b.c", gomock.Any(), gomock.Any()).Return(nil).Times(2)

	// Token mode is off in the fixture, so use the public regeneration form
	// to obtain a token, then exercise the link.
	rec := f.do(t, http.MethodPost, "/api/v1/parcels", map[string]string{
		"size":            "medium",
		"recipient_email": "a@b.c",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/pin/regenerate", map[string]string{
		"email":     "a@b.c",
		"locker_id": "L1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	parcels, err := f.store.Parcels().GetDepositedWithPin(context.Background())
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	require.NotNil(t, parcels[0].PinGenerationToken)
	token := *parcels[0].PinGenerationToken

	rec = f.do(t, http.MethodGet, "/pin/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["pin"].(string), 6)

	rec = f.do(t, http.MethodGet, "/pin/bogus-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPinRegenerateIsGenericForUnknownDetails(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)

	rec := f.do(t, http.MethodPost, "/api/v1/pin/regenerate", map[string]string{
		"email":     "stranger@b.c",
		"locker_id": "L1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "If your details matched")
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/lockers/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "small")
	assert.Contains(t, body, "medium")
	assert.Contains(t, body, "large")
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)

	rec := f.do(t, http.MethodPut, "/api/v1/admin/lockers/L1/status", map[string]string{"status": "out_of_service"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/admin/lockers/L1/status", map[string]string{"status": "out_of_service"},
		func(r *http.Request) { r.SetBasicAuth("admin", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLockerStatusOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.addLocker(t, "L1", repository.SizeMedium)
	require.NoError(t, f.store.Users().CreateUser(context.Background(), "admin", "secret"))
	auth := func(r *http.Request) { r.SetBasicAuth("admin", "secret") }

	rec := f.do(t, http.MethodPut, "/api/v1/admin/lockers/L1/status", map[string]string{"status": "out_of_service"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	locker, err := f.store.Lockers().GetByID(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, repository.LockerOutOfService, locker.Status)

	rec = f.do(t, http.MethodPut, "/api/v1/admin/lockers/L1/status", map[string]string{"status": "melted"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The admin listing reflects the cache overlay written by the handler.
	rec = f.do(t, http.MethodGet, "/api/v1/admin/lockers", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var lockers []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lockers))
	require.Len(t, lockers, 1)
	assert.Equal(t, "out_of_service", lockers[0]["status"])
}

func TestRedactSecrets(t *testing.T) {
	in := `{"pin":"123456","size":"small"}`
	out := redactSecrets(in)
	assert.NotContains(t, out, "123456")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, `"size":"small"`)

	in = `{"username":"admin","password":"hunter2"}`
	out = redactSecrets(in)
	assert.NotContains(t, out, "hunter2")

	// Bodies without secrets pass through untouched.
	in = `{"email":"a@b.c"}`
	assert.Equal(t, in, redactSecrets(in))
}
