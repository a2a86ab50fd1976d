package repositories

import (
	"context"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query and aggregation helpers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update rewrites the order document. When the stored document changed
	// since it was read the repository must return a conflict error.
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.PagedResult[domain.Order], error)
	CountByStatus(ctx context.Context, scope OrderScope) (map[domain.OrderStatus]int64, error)
	SumCompletedRevenue(ctx context.Context, scope OrderScope) (int64, error)
	DailyStatusCounts(ctx context.Context, scope OrderScope, from, to time.Time) ([]domain.DailyStatusCount, error)
}

// PostRepository reads content records and patches their lifecycle status.
type PostRepository interface {
	FindByID(ctx context.Context, postID string) (domain.Post, error)
	UpdateStatus(ctx context.Context, postID string, status domain.PostStatus, updatedAt time.Time) error
}

// WebsiteRepository reads catalog entries to resolve the owning publisher.
type WebsiteRepository interface {
	FindByID(ctx context.Context, websiteID string) (domain.Website, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderScope restricts queries to one side of the marketplace. Zero value
// means no restriction (admin scope).
type OrderScope struct {
	AdvertiserID string
	PublisherID  string
}

// OrderListFilter controls filtering and paging for order listings.
type OrderListFilter struct {
	Scope OrderScope
	// Status keeps only orders in the given state when non-empty.
	Status *domain.OrderStatus
	// Search matches order numbers by prefix.
	Search string
	Page   domain.Page
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
