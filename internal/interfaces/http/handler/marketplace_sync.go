package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SyncController is the part of the sync scheduler the admin API drives
type SyncController interface {
	TriggerManualSync(ctx context.Context, channelID *int64) scheduler.ManualSyncResult
	GetStatus() scheduler.Status
}

// ChannelLister lists the channels the scheduler would sync
type ChannelLister interface {
	ListActive(ctx context.Context) ([]marketplace.Channel, error)
}

var _ SyncController = (*scheduler.MarketplaceSyncScheduler)(nil)

// MarketplaceSyncHandler exposes sync status, manual triggers and the channel list
type MarketplaceSyncHandler struct {
	BaseHandler
	sync     SyncController
	channels ChannelLister
}

// NewMarketplaceSyncHandler creates a new MarketplaceSyncHandler
func NewMarketplaceSyncHandler(sync SyncController, channels ChannelLister) *MarketplaceSyncHandler {
	return &MarketplaceSyncHandler{
		sync:     sync,
		channels: channels,
	}
}

// Routes returns the marketplace route group
func (h *MarketplaceSyncHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("marketplace", "/marketplace")
	g.GET("/channels", h.ListChannels)

	syncGroup := g.Group("sync", "/sync")
	syncGroup.GET("/status", h.GetStatus)
	syncGroup.POST("/trigger", h.TriggerSync)
	return g
}

// GetStatus godoc
// @ID           getMarketplaceSyncStatus
// @Summary      Get sync scheduler status
// @Description  Returns the in-memory scheduler state and the last result per channel
// @Tags         marketplace
// @Produce      json
// @Success      200 {object} APIResponse[dto.SyncStatusResponse]
// @Router       /marketplace/sync/status [get]
func (h *MarketplaceSyncHandler) GetStatus(c *gin.Context) {
	h.Success(c, dto.NewSyncStatusResponse(h.sync.GetStatus()))
}

// TriggerSync godoc
// @ID           triggerMarketplaceSync
// @Summary      Trigger a sync pass
// @Description  Syncs one channel, or every active channel when channel_id is omitted.
// @Description  The request is held open until the pass completes.
// @Tags         marketplace
// @Accept       json
// @Produce      json
// @Param        request body dto.TriggerSyncRequest false "Channel to sync"
// @Success      200 {object} APIResponse[dto.TriggerSyncResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /marketplace/sync/trigger [post]
func (h *MarketplaceSyncHandler) TriggerSync(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body must be a JSON object")
		return
	}

	result := h.sync.TriggerManualSync(c.Request.Context(), req.ChannelID)
	if result.Err != nil {
		logger.GetGinLogger(c).Info("Manual sync refused",
			zap.String("reason", result.Message),
			zap.Error(result.Err),
		)
		h.HandleError(c, result.Err, result.Message)
		return
	}

	resp := dto.NewTriggerSyncResponse(result)
	c.JSON(http.StatusOK, dto.Response{Success: resp.Success, Data: resp})
}

// ListChannels godoc
// @ID           listMarketplaceChannels
// @Summary      List active channels
// @Description  Lists channels the scheduler syncs. Credentials are never returned.
// @Tags         marketplace
// @Produce      json
// @Success      200 {object} APIResponse[[]dto.ChannelResponse]
// @Failure      503 {object} ErrorResponse
// @Router       /marketplace/channels [get]
func (h *MarketplaceSyncHandler) ListChannels(c *gin.Context) {
	channels, err := h.channels.ListActive(c.Request.Context())
	if err != nil {
		logger.GetGinLogger(c).Error("Failed to list channels", zap.Error(err))
		h.ServiceUnavailable(c, "Channels are temporarily unavailable")
		return
	}
	h.SuccessList(c, dto.NewChannelListResponse(channels), len(channels))
}
