package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// GormChannelRepository implements marketplace.ChannelRepository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// Ensure GormChannelRepository implements the ChannelRepository port
var _ marketplace.ChannelRepository = (*GormChannelRepository)(nil)

// ListActive returns all active channels ordered by id
func (r *GormChannelRepository) ListActive(ctx context.Context) ([]marketplace.Channel, error) {
	var channelModels []models.MarketplaceChannelModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&channelModels).Error; err != nil {
		return nil, err
	}

	channels := make([]marketplace.Channel, len(channelModels))
	for i, model := range channelModels {
		channels[i] = *model.ToDomain()
	}
	return channels, nil
}

// FindByID finds a channel by id regardless of its active flag
func (r *GormChannelRepository) FindByID(ctx context.Context, id int64) (*marketplace.Channel, error) {
	var model models.MarketplaceChannelModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrChannelNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateLastSyncAt records the time of the last successful sync for a channel
func (r *GormChannelRepository) UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceChannelModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sync_at": at,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrChannelNotFound
	}
	return nil
}

// Create inserts a new channel and assigns its id
func (r *GormChannelRepository) Create(ctx context.Context, channel *marketplace.Channel) error {
	now := time.Now()
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = now
	}
	channel.UpdatedAt = now

	model := models.MarketplaceChannelModelFromDomain(channel)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	channel.ID = model.ID
	return nil
}
