package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type mockSyncController struct {
	mu       sync.Mutex
	status   scheduler.Status
	result   scheduler.ManualSyncResult
	calls    int
	lastID   *int64
	ctxError error
}

func (m *mockSyncController) TriggerManualSync(ctx context.Context, channelID *int64) scheduler.ManualSyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastID = channelID
	m.ctxError = ctx.Err()
	return m.result
}

func (m *mockSyncController) GetStatus() scheduler.Status {
	return m.status
}

type mockChannelLister struct {
	channels []marketplace.Channel
	err      error
}

func (m *mockChannelLister) ListActive(_ context.Context) ([]marketplace.Channel, error) {
	return m.channels, m.err
}

func newSyncEngine(ctrl *mockSyncController, lister *mockChannelLister) *gin.Engine {
	middleware.SetupValidator()
	engine := gin.New()
	engine.Use(middleware.RequestID())
	NewMarketplaceSyncHandler(ctrl, lister).Routes().RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doRequest(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestMarketplaceSyncHandler_GetStatus(t *testing.T) {
	last := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	next := last.Add(15 * time.Minute)
	ctrl := &mockSyncController{status: scheduler.Status{
		IsRunning:       true,
		IntervalMinutes: 15,
		LastSyncTime:    &last,
		NextSyncTime:    &next,
		ChannelResults: map[int64]marketplace.SyncRunResult{
			2: {ChannelID: 2, ChannelName: "Amazon US", Success: false, Error: "throttled"},
			1: {ChannelID: 1, ChannelName: "BC Store", Success: true, OrdersProcessed: 5},
		},
	}}
	engine := newSyncEngine(ctrl, &mockChannelLister{})

	w := doRequest(engine, http.MethodGet, "/api/v1/marketplace/sync/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[dto.SyncStatusResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.IsRunning)
	assert.Equal(t, 15, resp.Data.IntervalMinutes)
	require.NotNil(t, resp.Data.NextSyncTime)
	assert.True(t, next.Equal(*resp.Data.NextSyncTime))
	require.Len(t, resp.Data.ChannelResults, 2)
	assert.Equal(t, int64(1), resp.Data.ChannelResults[0].ChannelID)
	assert.Equal(t, "throttled", resp.Data.ChannelResults[1].Error)
}

// ---------------------------------------------------------------------------
// Trigger
// ---------------------------------------------------------------------------

func TestMarketplaceSyncHandler_TriggerAllChannels(t *testing.T) {
	ctrl := &mockSyncController{result: scheduler.ManualSyncResult{
		Success: true,
		Message: "Synced 2 channel(s): 2 succeeded, 0 failed, 7 order(s) processed",
		Results: []marketplace.SyncRunResult{{ChannelID: 1, Success: true}, {ChannelID: 2, Success: true}},
	}}
	engine := newSyncEngine(ctrl, &mockChannelLister{})

	for _, body := range []string{"", `{}`} {
		w := doRequest(engine, http.MethodPost, "/api/v1/marketplace/sync/trigger", body)

		require.Equal(t, http.StatusOK, w.Code, "body %q", body)
		var resp APIResponse[dto.TriggerSyncResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.True(t, resp.Data.Success)
		assert.Len(t, resp.Data.Results, 2)
		assert.Nil(t, ctrl.lastID)
	}
	assert.Equal(t, 2, ctrl.calls)
}

func TestMarketplaceSyncHandler_TriggerSingleChannel(t *testing.T) {
	ctrl := &mockSyncController{result: scheduler.ManualSyncResult{
		Success: true,
		Message: "Synced 3 order(s) from BC Store",
		Results: []marketplace.SyncRunResult{{ChannelID: 7, Success: true, OrdersProcessed: 3}},
	}}
	engine := newSyncEngine(ctrl, &mockChannelLister{})

	w := doRequest(engine, http.MethodPost, "/api/v1/marketplace/sync/trigger", `{"channel_id": 7}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ctrl.lastID)
	assert.Equal(t, int64(7), *ctrl.lastID)
	assert.NoError(t, ctrl.ctxError)

	var resp APIResponse[dto.TriggerSyncResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Synced 3 order(s) from BC Store", resp.Data.Message)
}

func TestMarketplaceSyncHandler_TriggerPartialFailure(t *testing.T) {
	ctrl := &mockSyncController{result: scheduler.ManualSyncResult{
		Success: false,
		Message: "Sync failed for Amazon US: marketplace: rate limited",
		Results: []marketplace.SyncRunResult{{ChannelID: 2, Success: false, Error: "marketplace: rate limited"}},
	}}
	engine := newSyncEngine(ctrl, &mockChannelLister{})

	w := doRequest(engine, http.MethodPost, "/api/v1/marketplace/sync/trigger", `{"channel_id": 2}`)

	// The pass ran; the failure is reported in the body, not the status code
	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[dto.TriggerSyncResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.False(t, resp.Data.Success)
	assert.Equal(t, "Sync failed for Amazon US: marketplace: rate limited", resp.Data.Message)
	require.Len(t, resp.Data.Results, 1)
}

func TestMarketplaceSyncHandler_TriggerRefused(t *testing.T) {
	tests := []struct {
		name           string
		result         scheduler.ManualSyncResult
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "busy",
			result:         scheduler.ManualSyncResult{Message: scheduler.SyncInProgressMessage, Err: scheduler.ErrSyncInProgress},
			expectedStatus: http.StatusConflict,
			expectedCode:   dto.ErrCodeSyncInProgress,
		},
		{
			name:           "channel not found",
			result:         scheduler.ManualSyncResult{Message: "Channel 9 not found", Err: marketplace.ErrChannelNotFound},
			expectedStatus: http.StatusNotFound,
			expectedCode:   dto.ErrCodeNotFound,
		},
		{
			name:           "channel inactive",
			result:         scheduler.ManualSyncResult{Message: "Channel 3 is not active", Err: marketplace.ErrChannelInactive},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   dto.ErrCodeInvalidState,
		},
		{
			name: "channel list failed",
			result: scheduler.ManualSyncResult{
				Message: "failed to list active channels: timeout",
				Err:     fmt.Errorf("%w: timeout", scheduler.ErrChannelListFailed),
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   dto.ErrCodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newSyncEngine(&mockSyncController{result: tt.result}, &mockChannelLister{})

			w := doRequest(engine, http.MethodPost, "/api/v1/marketplace/sync/trigger", `{"channel_id": 9}`)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.result.Message, resp.Error.Message)
			assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), resp.Error.RequestID)
		})
	}
}

func TestMarketplaceSyncHandler_TriggerBadRequest(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		expectedCode string
	}{
		{"invalid json", `{"channel_id":`, dto.ErrCodeInvalidJSON},
		{"wrong type", `{"channel_id": "seven"}`, dto.ErrCodeInvalidJSON},
		{"non-positive id", `{"channel_id": 0}`, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockSyncController{}
			engine := newSyncEngine(ctrl, &mockChannelLister{})

			w := doRequest(engine, http.MethodPost, "/api/v1/marketplace/sync/trigger", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Zero(t, ctrl.calls)
		})
	}
}

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

func TestMarketplaceSyncHandler_ListChannels(t *testing.T) {
	synced := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &mockChannelLister{channels: []marketplace.Channel{
		{
			ID:          1,
			Type:        marketplace.ChannelTypeBigCommerce,
			Name:        "BC Store",
			Active:      true,
			Credentials: json.RawMessage(`{"access_token":"top-secret"}`),
			LastSyncAt:  &synced,
		},
		{ID: 2, Type: marketplace.ChannelTypeAmazon, Name: "Amazon US", Active: true},
	}}
	engine := newSyncEngine(&mockSyncController{}, lister)

	w := doRequest(engine, http.MethodGet, "/api/v1/marketplace/channels", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "top-secret")

	var resp APIResponse[[]dto.ChannelResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "bigcommerce", resp.Data[0].Type)
	assert.Equal(t, "BigCommerce", resp.Data[0].TypeName)
	assert.Equal(t, "Amazon", resp.Data[1].TypeName)
	require.NotNil(t, resp.Data[0].LastSyncAt)
	assert.Nil(t, resp.Data[1].LastSyncAt)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(2), resp.Meta.Total)
}

func TestMarketplaceSyncHandler_ListChannelsError(t *testing.T) {
	engine := newSyncEngine(&mockSyncController{}, &mockChannelLister{err: errors.New("pq: connection refused")})

	w := doRequest(engine, http.MethodGet, "/api/v1/marketplace/channels", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeUnavailable, resp.Error.Code)
}
