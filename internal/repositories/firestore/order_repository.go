package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	pfirestore "github.com/kento-1999/Alpus-links-sub000/internal/platform/firestore"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert writes a new order document under the order ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	_, err := r.base.Set(ctx, id, encodeOrder(order))
	return err
}

// Update rewrites the mutable fields of an order. The precondition fails with
// a conflict error when the stored document changed since order.UpdatedAt.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if order.UpdatedAt.IsZero() {
		return errors.New("order repository: order update time is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "timeline", Value: encodeTimeline(order.Timeline)},
	}
	if order.RejectionReason == nil {
		updates = append(updates, firestore.Update{Path: "rejectionReason", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "rejectionReason", Value: *order.RejectionReason})
	}
	if order.CompletedAt != nil {
		updates = append(updates, firestore.Update{Path: "completedAt", Value: order.CompletedAt.UTC()})
	}

	_, err := r.base.Update(ctx, id, updates, firestore.LastUpdateTime(order.UpdatedAt.UTC()))
	return err
}

// Delete removes the order document unconditionally.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Delete(ctx, id)
	return err
}

// FindByID loads a single order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

// List returns one page of orders matching the filter plus total counts.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.PagedResult[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.PagedResult[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Page.Limit
	if limit <= 0 {
		limit = 20
	}

	match := orderFilterQuery(filter)
	total, err := r.base.Count(ctx, match)
	if err != nil {
		return domain.PagedResult[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = match(query)
		if strings.TrimSpace(filter.Search) != "" {
			query = query.OrderBy("orderNumber", firestore.Asc)
		} else {
			query = query.OrderBy("createdAt", firestore.Desc)
		}
		return query.Offset(filter.Page.Offset()).Limit(limit)
	})
	if err != nil {
		return domain.PagedResult[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrder(doc))
	}

	page := filter.Page.Number
	if page <= 0 {
		page = 1
	}
	totalPages := int64(0)
	if total > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}

	return domain.PagedResult[domain.Order]{
		Items: items,
		Info: domain.PageInfo{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// CountByStatus returns the number of orders per lifecycle status within the scope.
func (r *OrderRepository) CountByStatus(ctx context.Context, scope repositories.OrderScope) (map[domain.OrderStatus]int64, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	statuses := []domain.OrderStatus{
		domain.OrderStatusRequested,
		domain.OrderStatusInProgress,
		domain.OrderStatusAdvertiserApproval,
		domain.OrderStatusCompleted,
		domain.OrderStatusRejected,
	}

	counts := make(map[domain.OrderStatus]int64, len(statuses))
	for _, status := range statuses {
		status := status
		count, err := r.base.Count(ctx, func(query firestore.Query) firestore.Query {
			return scopeQuery(query, scope).Where("status", "==", string(status))
		})
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, nil
}

// SumCompletedRevenue totals the price of completed orders within the scope.
func (r *OrderRepository) SumCompletedRevenue(ctx context.Context, scope repositories.OrderScope) (int64, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("order repository not initialised")
	}
	return r.base.SumInt64(ctx, "price", func(query firestore.Query) firestore.Query {
		return scopeQuery(query, scope).Where("status", "==", string(domain.OrderStatusCompleted))
	})
}

// DailyStatusCounts buckets orders created in [from, to) by UTC day and status.
func (r *OrderRepository) DailyStatusCounts(ctx context.Context, scope repositories.OrderScope, from, to time.Time) ([]domain.DailyStatusCount, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if !from.Before(to) {
		return nil, errors.New("order repository: range start must precede range end")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return scopeQuery(query, scope).
			Where("createdAt", ">=", from.UTC()).
			Where("createdAt", "<", to.UTC()).
			Select("createdAt", "status")
	})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		date   string
		status domain.OrderStatus
	}
	tally := make(map[bucket]int64)
	order := make([]bucket, 0)
	for _, doc := range docs {
		key := bucket{
			date:   doc.Data.CreatedAt.UTC().Format("2006-01-02"),
			status: domain.OrderStatus(doc.Data.Status),
		}
		if _, seen := tally[key]; !seen {
			order = append(order, key)
		}
		tally[key]++
	}

	rows := make([]domain.DailyStatusCount, 0, len(order))
	for _, key := range order {
		rows = append(rows, domain.DailyStatusCount{
			Date:   key.date,
			Status: key.status,
			Count:  tally[key],
		})
	}
	return rows, nil
}

func orderFilterQuery(filter repositories.OrderListFilter) pfirestore.QueryBuilder {
	return func(query firestore.Query) firestore.Query {
		query = scopeQuery(query, filter.Scope)
		if filter.Status != nil {
			query = query.Where("status", "==", string(*filter.Status))
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			query = query.
				Where("orderNumber", ">=", search).
				Where("orderNumber", "<", search+"\uf8ff")
		}
		return query
	}
}

func scopeQuery(query firestore.Query, scope repositories.OrderScope) firestore.Query {
	if advertiser := strings.TrimSpace(scope.AdvertiserID); advertiser != "" {
		query = query.Where("advertiserId", "==", advertiser)
	}
	if publisher := strings.TrimSpace(scope.PublisherID); publisher != "" {
		query = query.Where("publisherId", "==", publisher)
	}
	return query
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:  strings.TrimSpace(order.OrderNumber),
		AdvertiserID: strings.TrimSpace(order.AdvertiserID),
		PublisherID:  strings.TrimSpace(order.PublisherID),
		WebsiteID:    strings.TrimSpace(order.WebsiteID),
		Type:         string(order.Type),
		Price:        order.Price,
		Status:       string(order.Status),
		Timeline:     encodeTimeline(order.Timeline),
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}
	if order.PostID != nil && strings.TrimSpace(*order.PostID) != "" {
		doc.PostID = strings.TrimSpace(*order.PostID)
	}
	if order.LinkInsertionID != nil && strings.TrimSpace(*order.LinkInsertionID) != "" {
		doc.LinkInsertionID = strings.TrimSpace(*order.LinkInsertionID)
	}
	if order.RejectionReason != nil {
		doc.RejectionReason = *order.RejectionReason
	}
	if order.CompletedAt != nil {
		completed := order.CompletedAt.UTC()
		doc.CompletedAt = &completed
	}
	return doc
}

func decodeOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	order := domain.Order{
		ID:           doc.ID,
		OrderNumber:  data.OrderNumber,
		AdvertiserID: data.AdvertiserID,
		PublisherID:  data.PublisherID,
		WebsiteID:    data.WebsiteID,
		Type:         domain.OrderType(data.Type),
		Price:        data.Price,
		Status:       domain.OrderStatus(data.Status),
		Timeline:     decodeTimeline(data.Timeline),
		CreatedAt:    data.CreatedAt,
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return data.UpdatedAt
		}(),
	}
	if data.PostID != "" {
		postID := data.PostID
		order.PostID = &postID
	}
	if legacy := normalizeContentID(data.LinkInsertionID); legacy != "" {
		order.LinkInsertionID = &legacy
	}
	if data.RejectionReason != "" {
		reason := data.RejectionReason
		order.RejectionReason = &reason
	}
	if data.CompletedAt != nil {
		completed := *data.CompletedAt
		order.CompletedAt = &completed
	}
	return order
}

func encodeTimeline(entries []domain.TimelineEntry) []timelineEntryDocument {
	out := make([]timelineEntryDocument, 0, len(entries))
	for _, entry := range entries {
		doc := timelineEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			UpdatedBy: entry.UpdatedBy,
		}
		if entry.Note != nil {
			doc.Note = *entry.Note
		}
		out = append(out, doc)
	}
	return out
}

func decodeTimeline(entries []timelineEntryDocument) []domain.TimelineEntry {
	out := make([]domain.TimelineEntry, 0, len(entries))
	for _, doc := range entries {
		entry := domain.TimelineEntry{
			Status:    domain.OrderStatus(doc.Status),
			Timestamp: doc.Timestamp,
			UpdatedBy: doc.UpdatedBy,
		}
		if doc.Note != "" {
			note := doc.Note
			entry.Note = &note
		}
		out = append(out, entry)
	}
	return out
}

// normalizeContentID collapses the historical encodings of linkInsertionId
// (plain string, document reference, or an object carrying an id field) into
// the referenced document id.
func normalizeContentID(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case *firestore.DocumentRef:
		if v == nil {
			return ""
		}
		return v.ID
	case map[string]any:
		for _, key := range []string{"id", "_id", "$id"} {
			if nested, ok := v[key]; ok {
				if id := normalizeContentID(nested); id != "" {
					return id
				}
			}
		}
	}
	return ""
}

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	AdvertiserID    string                  `firestore:"advertiserId"`
	PublisherID     string                  `firestore:"publisherId"`
	WebsiteID       string                  `firestore:"websiteId"`
	Type            string                  `firestore:"type"`
	PostID          string                  `firestore:"postId,omitempty"`
	LinkInsertionID any                     `firestore:"linkInsertionId,omitempty"`
	Price           int64                   `firestore:"price"`
	Status          string                  `firestore:"status"`
	Timeline        []timelineEntryDocument `firestore:"timeline"`
	RejectionReason string                  `firestore:"rejectionReason,omitempty"`
	CompletedAt     *time.Time              `firestore:"completedAt,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type timelineEntryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
	UpdatedBy string    `firestore:"updatedBy"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
