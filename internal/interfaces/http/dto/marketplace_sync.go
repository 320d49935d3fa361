package dto

import (
	"sort"
	"time"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// TriggerSyncRequest is the body of a manual sync trigger.
// An absent channel_id syncs every active channel.
type TriggerSyncRequest struct {
	ChannelID *int64 `json:"channel_id" binding:"omitempty,min=1"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SyncStatusResponse is the scheduler state exposed to operators
type SyncStatusResponse struct {
	IsRunning       bool                        `json:"is_running"`
	IsSyncing       bool                        `json:"is_syncing"`
	IntervalMinutes int                         `json:"interval_minutes"`
	LastSyncTime    *time.Time                  `json:"last_sync_time"`
	NextSyncTime    *time.Time                  `json:"next_sync_time"`
	ChannelResults  []marketplace.SyncRunResult `json:"channel_results"`
}

// TriggerSyncResponse is the outcome of a manual trigger
type TriggerSyncResponse struct {
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	Results []marketplace.SyncRunResult `json:"results"`
}

// ChannelResponse is a channel without its credentials
type ChannelResponse struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	TypeName   string     `json:"type_name"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewSyncStatusResponse converts a scheduler snapshot. Channel results are ordered by channel ID.
func NewSyncStatusResponse(status scheduler.Status) SyncStatusResponse {
	results := make([]marketplace.SyncRunResult, 0, len(status.ChannelResults))
	for _, r := range status.ChannelResults {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ChannelID < results[j].ChannelID
	})

	return SyncStatusResponse{
		IsRunning:       status.IsRunning,
		IsSyncing:       status.IsSyncing,
		IntervalMinutes: status.IntervalMinutes,
		LastSyncTime:    status.LastSyncTime,
		NextSyncTime:    status.NextSyncTime,
		ChannelResults:  results,
	}
}

// NewTriggerSyncResponse converts a manual trigger result
func NewTriggerSyncResponse(result scheduler.ManualSyncResult) TriggerSyncResponse {
	results := result.Results
	if results == nil {
		results = []marketplace.SyncRunResult{}
	}
	return TriggerSyncResponse{
		Success: result.Success,
		Message: result.Message,
		Results: results,
	}
}

// NewChannelResponse converts a domain channel
func NewChannelResponse(channel *marketplace.Channel) ChannelResponse {
	return ChannelResponse{
		ID:         channel.ID,
		Type:       channel.Type.String(),
		TypeName:   channel.Type.DisplayName(),
		Name:       channel.Name,
		Active:     channel.Active,
		LastSyncAt: channel.LastSyncAt,
		CreatedAt:  channel.CreatedAt,
		UpdatedAt:  channel.UpdatedAt,
	}
}

// NewChannelListResponse converts a slice of domain channels
func NewChannelListResponse(channels []marketplace.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(channels))
	for i := range channels {
		out = append(out, NewChannelResponse(&channels[i]))
	}
	return out
}
