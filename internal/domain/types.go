package domain

import (
	"time"
)

// Page carries offset-based paging inputs for list operations.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the number of documents to skip for this page.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// PageInfo is the paging metadata returned alongside list results.
type PageInfo struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int64
}

// PagedResult wraps a page of items with the paging metadata.
type PagedResult[T any] struct {
	Items []T
	Info  PageInfo
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Role names the marketplace side an authenticated caller acts for.
type Role string

const (
	// RoleAdvertiser buys placements.
	RoleAdvertiser Role = "advertiser"
	// RolePublisher fulfils placements on their websites.
	RolePublisher Role = "publisher"
	// RoleAdmin operates the marketplace.
	RoleAdmin Role = "admin"
)

// OrderType enumerates the service kinds an advertiser can purchase.
type OrderType string

const (
	// OrderTypeGuestPost is a guest post authored by the advertiser.
	OrderTypeGuestPost OrderType = "guestPost"
	// OrderTypeLinkInsertion inserts a link into an existing article.
	OrderTypeLinkInsertion OrderType = "linkInsertion"
	// OrderTypeWritingGuestPost is a guest post written by the publisher.
	OrderTypeWritingGuestPost OrderType = "writingGuestPost"
)

// ValidOrderType reports whether t is a recognised order type.
func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderTypeGuestPost, OrderTypeLinkInsertion, OrderTypeWritingGuestPost:
		return true
	}
	return false
}

// OrderStatus describes lifecycle states for an order.
type OrderStatus string

const (
	// OrderStatusRequested is the initial state of a placed order.
	OrderStatusRequested OrderStatus = "requested"
	// OrderStatusInProgress indicates the publisher accepted and is working.
	OrderStatusInProgress OrderStatus = "inProgress"
	// OrderStatusAdvertiserApproval indicates work is awaiting advertiser review.
	OrderStatusAdvertiserApproval OrderStatus = "advertiserApproval"
	// OrderStatusCompleted is a terminal success state.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusRejected is a terminal failure state.
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderStatusValues returns every recognised order status in lifecycle order.
func OrderStatusValues() []OrderStatus {
	return []OrderStatus{
		OrderStatusRequested,
		OrderStatusInProgress,
		OrderStatusAdvertiserApproval,
		OrderStatusCompleted,
		OrderStatusRejected,
	}
}

// ValidOrderStatus reports whether s is a recognised order status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusRequested, OrderStatusInProgress, OrderStatusAdvertiserApproval,
		OrderStatusCompleted, OrderStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

// TimelineEntry is one append-only audit record of a status change.
type TimelineEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      *string
	UpdatedBy string
}

// ContentRefKind distinguishes how an order links to its content record.
type ContentRefKind string

const (
	// ContentRefPost points at a content record through the postId field.
	ContentRefPost ContentRefKind = "post"
	// ContentRefLegacyLinkInsertion points at a content record stored in the
	// historical linkInsertionId field of linkInsertion orders.
	ContentRefLegacyLinkInsertion ContentRefKind = "legacyLinkInsertion"
)

// ContentRef identifies the content record attached to an order. Both variants
// resolve against the posts collection; Kind records which field carried the id.
type ContentRef struct {
	Kind ContentRefKind
	ID   string
}

// Order is a single purchased placement between an advertiser and a publisher.
type Order struct {
	ID              string
	OrderNumber     string
	AdvertiserID    string
	PublisherID     string
	WebsiteID       string
	Type            OrderType
	PostID          *string
	LinkInsertionID *string
	Price           int64
	Status          OrderStatus
	Timeline        []TimelineEntry
	RejectionReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// ContentRef returns the content reference for the order, or nil when the
// order carries no content linkage.
func (o *Order) ContentRef() *ContentRef {
	if o.PostID != nil && *o.PostID != "" {
		return &ContentRef{Kind: ContentRefPost, ID: *o.PostID}
	}
	if o.Type == OrderTypeLinkInsertion && o.LinkInsertionID != nil && *o.LinkInsertionID != "" {
		return &ContentRef{Kind: ContentRefLegacyLinkInsertion, ID: *o.LinkInsertionID}
	}
	return nil
}

// OrderItem is a single cart line submitted for order placement.
type OrderItem struct {
	WebsiteID       string
	Type            OrderType
	PostID          *string
	LinkInsertionID *string
	Price           int64
}

// PostStatus describes lifecycle states for a content record.
type PostStatus string

const (
	// PostStatusPending is the initial state of a submitted content record.
	PostStatusPending PostStatus = "pending"
	// PostStatusInProgress indicates the publisher started working the content.
	PostStatusInProgress PostStatus = "inProgress"
	// PostStatusApproved indicates the content shipped and was accepted.
	PostStatusApproved PostStatus = "approved"
	// PostStatusRejected indicates the content was declined.
	PostStatusRejected PostStatus = "rejected"
)

// AnchorPair is one anchor text and target URL requested for a placement.
type AnchorPair struct {
	Anchor string
	URL    string
}

// Post is the content record backing guest posts and link insertions.
type Post struct {
	ID            string
	AdvertiserID  string
	Title         string
	Requirements  string
	Anchors       []AnchorPair
	CompletionURL *string
	Status        PostStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Website is a catalog entry owned by a publisher.
type Website struct {
	ID          string
	PublisherID string
	Domain      string
	Pricing     map[OrderType]int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResolvedOrder pairs an order with its resolved content record. Post is nil
// when the order has no content linkage or the record could not be found.
type ResolvedOrder struct {
	Order *Order
	Post  *Post
}

// OrderStats aggregates counts per status plus revenue from completed orders.
type OrderStats struct {
	StatusCounts              map[OrderStatus]int64
	TotalRevenueFromCompleted int64
}

// TrendPoint is one day bucket in a trend series.
type TrendPoint struct {
	Date   string
	Counts map[OrderStatus]int64
	Total  int64
}

// DailyStatusCount is a raw aggregation row before gap filling.
type DailyStatusCount struct {
	Date   string
	Status OrderStatus
	Count  int64
}

// HealthStatus grades the readiness of the system or one dependency.
type HealthStatus string

const (
	// HealthStatusOK means the dependency responded within its deadline.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded means the dependency answered with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError means the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck is the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness responses.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
