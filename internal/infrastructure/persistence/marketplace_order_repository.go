package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
)

// upsertedItemColumns are refreshed when an item with the same external id is synced again
var upsertedItemColumns = []string{"sku", "name", "quantity", "unit_price", "total_price", "updated_at"}

// GormOrderRepository implements marketplace.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Ensure GormOrderRepository implements the OrderRepository port
var _ marketplace.OrderRepository = (*GormOrderRepository)(nil)

// FindByExternalID finds an order by its natural key, with items preloaded
func (r *GormOrderRepository) FindByExternalID(ctx context.Context, channelID int64, externalOrderID string) (*marketplace.Order, error) {
	var model models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("external_item_id ASC") }).
		Where("channel_id = ? AND external_order_id = ?", channelID, externalOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts the order and its items in one transaction.
// Row ids and timestamps are assigned here and written back to the order.
func (r *GormOrderRepository) Create(ctx context.Context, order *marketplace.Order) error {
	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}

	model := models.MarketplaceOrderModelFromDomain(order)
	items := uniqueItemModels(model.Items)
	model.Items = nil
	for i := range items {
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// UpdateSyncedFields overwrites the mutable order fields; everything else stays as created
func (r *GormOrderRepository) UpdateSyncedFields(ctx context.Context, orderID uuid.UUID, fields marketplace.SyncedFields) error {
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceOrderModel{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":         fields.Status,
			"payment_status": fields.PaymentStatus,
			"grand_total":    fields.GrandTotal,
			"currency":       fields.Currency,
			"updated_at":     fields.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrOrderNotFound
	}
	return nil
}

// UpsertItems inserts new items and refreshes existing ones keyed by (order_id, external_item_id).
// Stored items missing from the slice are kept.
func (r *GormOrderRepository) UpsertItems(ctx context.Context, orderID uuid.UUID, items []marketplace.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now()
	itemModels := make([]models.MarketplaceOrderItemModel, len(items))
	for i := range items {
		item := items[i]
		item.ID = uuid.New()
		item.OrderID = orderID
		itemModels[i].FromDomain(&item)
		itemModels[i].CreatedAt = now
		itemModels[i].UpdatedAt = now
	}

	itemModels = uniqueItemModels(itemModels)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "external_item_id"}},
			DoUpdates: clause.AssignmentColumns(upsertedItemColumns),
		}).
		Create(&itemModels).Error
}

// uniqueItemModels drops repeated external item ids, keeping the last occurrence in place of the first.
// A single upsert statement cannot touch the same row twice.
func uniqueItemModels(items []models.MarketplaceOrderItemModel) []models.MarketplaceOrderItemModel {
	index := make(map[string]int, len(items))
	unique := make([]models.MarketplaceOrderItemModel, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ExternalItemID]; ok {
			item.ID = unique[i].ID
			unique[i] = item
			continue
		}
		index[item.ExternalItemID] = len(unique)
		unique = append(unique, item)
	}
	return unique
}
