package marketplace

import "time"

// SyncRunResult records the outcome of the last sync attempt for one channel.
// Results are kept in memory only.
type SyncRunResult struct {
	ChannelID       int64       `json:"channel_id"`
	ChannelName     string      `json:"channel_name"`
	ChannelType     ChannelType `json:"channel_type"`
	Success         bool        `json:"success"`
	OrdersFetched   int         `json:"orders_fetched"`
	OrdersProcessed int         `json:"orders_processed"`
	OrdersCreated   int         `json:"orders_created"`
	OrdersUpdated   int         `json:"orders_updated"`
	OrdersFailed    int         `json:"orders_failed"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	DurationMs      int64       `json:"duration_ms"`
}

// NewSyncRunResult starts a result for the channel
func NewSyncRunResult(channel *Channel, startedAt time.Time) *SyncRunResult {
	return &SyncRunResult{
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		ChannelType: channel.Type,
		StartedAt:   startedAt,
	}
}

// Succeed marks the run successful
func (r *SyncRunResult) Succeed(finishedAt time.Time) {
	r.Success = true
	r.Error = ""
	r.finish(finishedAt)
}

// Fail marks the run failed with the given error
func (r *SyncRunResult) Fail(err error, finishedAt time.Time) {
	r.Success = false
	if err != nil {
		r.Error = err.Error()
	}
	r.finish(finishedAt)
}

func (r *SyncRunResult) finish(at time.Time) {
	r.FinishedAt = at
	r.DurationMs = at.Sub(r.StartedAt).Milliseconds()
}
