package scheduler

import "errors"

var (
	// ErrSyncInProgress is returned when a sync pass is requested while another one is running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrChannelListFailed is returned when the active channels cannot be read; the pass is aborted
	ErrChannelListFailed = errors.New("failed to list active channels")

	// ErrChannelLoadFailed is returned when a manually triggered channel cannot be read
	ErrChannelLoadFailed = errors.New("failed to load channel")
)
