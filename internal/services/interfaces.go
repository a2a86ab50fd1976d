package services

import (
	"context"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
)

// Type aliases keep service signatures terse while domain owns the definitions.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderType          = domain.OrderType
	OrderStats         = domain.OrderStats
	TimelineEntry      = domain.TimelineEntry
	TrendPoint         = domain.TrendPoint
	ResolvedOrder      = domain.ResolvedOrder
	Post               = domain.Post
	PostStatus         = domain.PostStatus
	Website            = domain.Website
	Page               = domain.Page
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller and their marketplace role.
type Actor struct {
	ID   string
	Role domain.Role
}

// OrderService encapsulates order placement, reads, and lifecycle transitions.
type OrderService interface {
	PlaceOrders(ctx context.Context, cmd PlaceOrdersCommand) (PlaceOrdersResult, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.PagedResult[ResolvedOrder], error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (ResolvedOrder, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
}

// ContentResolver recovers the content record referenced by an order.
type ContentResolver interface {
	Resolve(ctx context.Context, order *Order) *Post
	ResolveAll(ctx context.Context, orders []Order) []ResolvedOrder
}

// AnalyticsService computes status distributions and day-bucketed trends.
type AnalyticsService interface {
	OrderStats(ctx context.Context, actor Actor) (OrderStats, error)
	OrderTrends(ctx context.Context, cmd TrendQuery) ([]TrendPoint, error)
}

// ContentSyncPublisher emits best-effort content status patches for
// asynchronous application. Delivery failures must not fail the caller.
type ContentSyncPublisher interface {
	PublishStatusPatch(ctx context.Context, patch ContentStatusPatch) error
}

// ContentSyncService applies published status patches to content records.
type ContentSyncService interface {
	ApplyStatusPatch(ctx context.Context, cmd ContentStatusPatch) error
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// PlaceOrdersCommand materialises every cart line item into its own order.
type PlaceOrdersCommand struct {
	AdvertiserID string
	Items        []OrderItem
}

// PlaceOrdersResult reports the persisted orders in input sequence.
type PlaceOrdersResult struct {
	Orders []Order
	Count  int
}

// ListOrdersCommand scopes a listing to the actor's side of the marketplace.
// Admin actors list across both sides.
type ListOrdersCommand struct {
	Actor  Actor
	Status *OrderStatus
	Search string
	Page   Page
}

// OrderStatusCommand requests a role-gated lifecycle transition.
type OrderStatusCommand struct {
	OrderID         string
	Actor           Actor
	TargetStatus    OrderStatus
	Note            *string
	RejectionReason *string
}

// DeleteOrderCommand removes an order. Admin only.
type DeleteOrderCommand struct {
	OrderID string
	Actor   Actor
}

// ContentStatusPatch carries one content-record status update.
type ContentStatusPatch struct {
	PostID     string
	Status     PostStatus
	OrderID    string
	OccurredAt time.Time
}

// TrendQuery selects the window for a trend series. Either Period or the
// explicit From/To pair is set; explicit bounds win when both appear.
type TrendQuery struct {
	Actor  Actor
	Period string
	From   *time.Time
	To     *time.Time
}
