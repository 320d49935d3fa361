package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
)

const (
	// DefaultLookbackOverlap widens the incremental fetch window so orders
	// modified while the previous pass was running are seen again
	DefaultLookbackOverlap = 5 * time.Minute
)

// UpsertOutcome reports what an upsert did with an order
type UpsertOutcome int

const (
	UpsertCreated UpsertOutcome = iota + 1
	UpsertUpdated
)

// String returns the outcome name used in logs
func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Reconciler writes canonical orders into storage, keyed by (channel id, external order id).
// It performs no network calls itself; SyncChannel drives a MarketplaceClient and
// reconciles whatever it returns.
type Reconciler struct {
	orders          marketplace.OrderRepository
	channels        marketplace.ChannelRepository
	normalize       marketplace.OrderNormalizer
	logger          *zap.Logger
	now             func() time.Time
	lookbackOverlap time.Duration
	pageSize        int
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithClock overrides the time source
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLookbackOverlap sets how far before last_sync_at incremental fetches start
func WithLookbackOverlap(overlap time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if overlap >= 0 {
			r.lookbackOverlap = overlap
		}
	}
}

// WithPageSize sets the page size requested from marketplace APIs (0 leaves the adapter default)
func WithPageSize(size int) ReconcilerOption {
	return func(r *Reconciler) {
		r.pageSize = size
	}
}

// NewReconciler creates a new Reconciler
func NewReconciler(
	orders marketplace.OrderRepository,
	channels marketplace.ChannelRepository,
	normalize marketplace.OrderNormalizer,
	logger *zap.Logger,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		orders:          orders,
		channels:        channels,
		normalize:       normalize,
		logger:          logger.Named("reconciler"),
		now:             time.Now,
		lookbackOverlap: DefaultLookbackOverlap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert inserts the order with its items when (channel id, external order id) is new.
// Otherwise it refreshes the mutable order fields and upserts the line items.
func (r *Reconciler) Upsert(ctx context.Context, channel *marketplace.Channel, order *marketplace.Order) (UpsertOutcome, error) {
	order.ChannelID = channel.ID
	if err := order.Validate(); err != nil {
		return 0, err
	}

	existing, err := r.orders.FindByExternalID(ctx, channel.ID, order.ExternalOrderID)
	if err != nil && !errors.Is(err, marketplace.ErrOrderNotFound) {
		return 0, fmt.Errorf("find order %s: %w", order.ExternalOrderID, err)
	}

	if existing == nil {
		if err := r.orders.Create(ctx, order); err != nil {
			return 0, fmt.Errorf("create order %s: %w", order.ExternalOrderID, err)
		}
		return UpsertCreated, nil
	}

	if err := r.orders.UpdateSyncedFields(ctx, existing.ID, order.SyncedFields(r.now())); err != nil {
		return 0, fmt.Errorf("update order %s: %w", order.ExternalOrderID, err)
	}
	if len(order.Items) > 0 {
		if err := r.orders.UpsertItems(ctx, existing.ID, order.Items); err != nil {
			return 0, fmt.Errorf("upsert items for order %s: %w", order.ExternalOrderID, err)
		}
	}
	order.ID = existing.ID
	order.CreatedAt = existing.CreatedAt
	return UpsertUpdated, nil
}

// SyncChannel fetches, normalizes and upserts every order for one channel.
// A failed order is logged and counted without stopping the rest of the batch.
// last_sync_at is advanced only when no order failed, so the next pass retries the same window.
func (r *Reconciler) SyncChannel(ctx context.Context, channel *marketplace.Channel, client marketplace.MarketplaceClient) *marketplace.SyncRunResult {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciler", "sync_channel",
		telemetry.WithAttribute(telemetry.SpanAttrChannelID, channel.ID),
		telemetry.WithAttribute(telemetry.SpanAttrChannelType, channel.Type.String()),
	)
	defer span.End()
	if since := channel.ModifiedSince(r.lookbackOverlap); since != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrModifiedSince, since.UTC().Format(time.RFC3339))
	}

	var result *marketplace.SyncRunResult
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfilingLabelOperation:   "sync_channel",
		telemetry.ProfilingLabelChannelType: channel.Type.String(),
	}, func(ctx context.Context) {
		result = r.syncChannel(ctx, channel, client)
	})

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrdersFetched, result.OrdersFetched,
		telemetry.SpanAttrOrdersCreated, result.OrdersCreated,
		telemetry.SpanAttrOrdersUpdated, result.OrdersUpdated,
		telemetry.SpanAttrOrdersFailed, result.OrdersFailed,
	)
	if result.Success {
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(result.Error))
	}
	return result
}

func (r *Reconciler) syncChannel(ctx context.Context, channel *marketplace.Channel, client marketplace.MarketplaceClient) *marketplace.SyncRunResult {
	result := marketplace.NewSyncRunResult(channel, r.now())
	log := r.logger.With(
		zap.Int64("channel_id", channel.ID),
		zap.String("channel_name", channel.Name),
		zap.String("channel_type", channel.Type.String()),
	)

	opts := marketplace.FetchOptions{
		ModifiedSince: channel.ModifiedSince(r.lookbackOverlap),
		PageSize:      r.pageSize,
	}
	raws, err := client.GetOrders(ctx, channel, opts)
	if err != nil {
		log.Error("Failed to fetch marketplace orders", zap.Error(err))
		result.Fail(fmt.Errorf("fetch orders: %w", err), r.now())
		return result
	}
	result.OrdersFetched = len(raws)

	var firstErr error
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			result.OrdersFailed += len(raws) - result.OrdersProcessed - result.OrdersFailed
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		outcome, err := r.reconcileOne(ctx, channel, raw)
		if err != nil {
			result.OrdersFailed++
			if firstErr == nil {
				firstErr = err
			}
			log.Warn("Failed to reconcile order",
				zap.String("external_order_id", raw.ExternalID),
				zap.Error(err),
			)
			continue
		}

		result.OrdersProcessed++
		if outcome == UpsertCreated {
			result.OrdersCreated++
		} else {
			result.OrdersUpdated++
		}
	}

	if result.OrdersFailed > 0 {
		err := fmt.Errorf("%d of %d orders failed: %w", result.OrdersFailed, len(raws), firstErr)
		result.Fail(err, r.now())
		log.Warn("Channel sync finished with failures",
			zap.Int("orders_processed", result.OrdersProcessed),
			zap.Int("orders_failed", result.OrdersFailed),
			zap.Error(firstErr),
		)
		return result
	}

	syncedAt := r.now()
	if err := r.channels.UpdateLastSyncAt(ctx, channel.ID, syncedAt); err != nil {
		log.Error("Failed to record last sync time", zap.Error(err))
		result.Fail(fmt.Errorf("update last_sync_at: %w", err), r.now())
		return result
	}
	channel.LastSyncAt = &syncedAt

	result.Succeed(r.now())
	log.Info("Channel sync completed",
		zap.Int("orders_fetched", result.OrdersFetched),
		zap.Int("orders_created", result.OrdersCreated),
		zap.Int("orders_updated", result.OrdersUpdated),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result
}

func (r *Reconciler) reconcileOne(ctx context.Context, channel *marketplace.Channel, raw marketplace.RawOrder) (UpsertOutcome, error) {
	order, err := r.normalize(channel.ID, raw)
	if err != nil {
		return 0, fmt.Errorf("normalize: %w", err)
	}
	return r.Upsert(ctx, channel, order)
}
