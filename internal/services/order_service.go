package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	// placedTimelineNote annotates the initial timeline entry of every order.
	placedTimelineNote = "Order placed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or a referenced entity could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status change is not
	// reachable from the current state for the acting role.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderUnauthorized indicates the actor may not act on this order.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderTransitionPolicy keys allowed target statuses by acting role and
// current status. Roles absent for a current status cannot move the order.
var orderTransitionPolicy = map[domain.Role]map[domain.OrderStatus][]domain.OrderStatus{
	domain.RolePublisher: {
		domain.OrderStatusRequested: {
			domain.OrderStatusInProgress,
			domain.OrderStatusRejected,
		},
		domain.OrderStatusInProgress: {
			domain.OrderStatusAdvertiserApproval,
			domain.OrderStatusRejected,
		},
		domain.OrderStatusAdvertiserApproval: {
			domain.OrderStatusCompleted,
			domain.OrderStatusRejected,
		},
	},
	domain.RoleAdvertiser: {
		domain.OrderStatusAdvertiserApproval: {
			domain.OrderStatusCompleted,
			domain.OrderStatusRejected,
		},
	},
}

// advertiserTargets are the only statuses an advertiser may ever request.
var advertiserTargets = []domain.OrderStatus{
	domain.OrderStatusCompleted,
	domain.OrderStatusRejected,
}

// contentStatusForOrderStatus maps order transitions to the content-record
// status patched as a side effect. Statuses absent here patch nothing.
var contentStatusForOrderStatus = map[domain.OrderStatus]domain.PostStatus{
	domain.OrderStatusInProgress: domain.PostStatusInProgress,
	domain.OrderStatusCompleted:  domain.PostStatusApproved,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Websites    repositories.WebsiteRepository
	Counters    repositories.CounterRepository
	Resolver    ContentResolver
	ContentSync ContentSyncPublisher
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	websites    repositories.WebsiteRepository
	counters    repositories.CounterRepository
	resolver    ContentResolver
	contentSync ContentSyncPublisher
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Websites == nil {
		return nil, errors.New("order service: website repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:      deps.Orders,
		websites:    deps.Websites,
		counters:    deps.Counters,
		resolver:    deps.Resolver,
		contentSync: deps.ContentSync,
		unitOfWork:  unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// PlaceOrders materialises every cart line item into its own order document.
// An unknown website aborts the batch; items persisted before the failing
// line remain committed and are not rolled back.
func (s *orderService) PlaceOrders(ctx context.Context, cmd PlaceOrdersCommand) (PlaceOrdersResult, error) {
	advertiserID := strings.TrimSpace(cmd.AdvertiserID)
	if advertiserID == "" {
		return PlaceOrdersResult{}, fmt.Errorf("%w: advertiser id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return PlaceOrdersResult{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.WebsiteID) == "" {
			return PlaceOrdersResult{}, fmt.Errorf("%w: item %d is missing website id", ErrOrderInvalidInput, i)
		}
		if !domain.ValidOrderType(item.Type) {
			return PlaceOrdersResult{}, fmt.Errorf("%w: item %d has unknown order type %q", ErrOrderInvalidInput, i, item.Type)
		}
	}

	placed := make([]Order, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		websiteID := strings.TrimSpace(item.WebsiteID)
		website, err := s.websites.FindByID(ctx, websiteID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return PlaceOrdersResult{Orders: placed, Count: len(placed)},
					fmt.Errorf("%w: website %s", ErrOrderNotFound, websiteID)
			}
			return PlaceOrdersResult{Orders: placed, Count: len(placed)}, s.mapRepositoryError(err)
		}

		now := s.now()
		order := Order{
			ID:           s.nextOrderID(),
			AdvertiserID: advertiserID,
			PublisherID:  website.PublisherID,
			WebsiteID:    websiteID,
			Type:         item.Type,
			Price:        s.resolvePrice(item, website),
			Status:       domain.OrderStatusRequested,
			Timeline: []TimelineEntry{{
				Status:    domain.OrderStatusRequested,
				Timestamp: now,
				Note:      valuePtr(placedTimelineNote),
				UpdatedBy: advertiserID,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if item.PostID != nil && strings.TrimSpace(*item.PostID) != "" {
			order.PostID = valuePtr(strings.TrimSpace(*item.PostID))
		}
		if item.LinkInsertionID != nil && strings.TrimSpace(*item.LinkInsertionID) != "" {
			order.LinkInsertionID = valuePtr(strings.TrimSpace(*item.LinkInsertionID))
		}

		number, err := s.generateOrderNumber(ctx, now)
		if err != nil {
			return PlaceOrdersResult{Orders: placed, Count: len(placed)}, err
		}
		order.OrderNumber = number

		if err := s.orders.Insert(ctx, order); err != nil {
			return PlaceOrdersResult{Orders: placed, Count: len(placed)}, s.mapRepositoryError(err)
		}
		placed = append(placed, order)

		s.logger(ctx, "order.placed", map[string]any{
			"order":      order.ID,
			"number":     order.OrderNumber,
			"advertiser": advertiserID,
			"publisher":  order.PublisherID,
			"website":    websiteID,
			"type":       string(order.Type),
		})
	}

	return PlaceOrdersResult{Orders: placed, Count: len(placed)}, nil
}

// ListOrders returns one page of orders on the actor's side of the
// marketplace with content references resolved per row.
func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.PagedResult[ResolvedOrder], error) {
	scope, err := scopeForActor(cmd.Actor)
	if err != nil {
		return domain.PagedResult[ResolvedOrder]{}, err
	}
	if cmd.Status != nil && !domain.ValidOrderStatus(*cmd.Status) {
		return domain.PagedResult[ResolvedOrder]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *cmd.Status)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Scope:  scope,
		Status: cmd.Status,
		Search: strings.TrimSpace(cmd.Search),
		Page:   cmd.Page,
	})
	if err != nil {
		return domain.PagedResult[ResolvedOrder]{}, s.mapRepositoryError(err)
	}

	return domain.PagedResult[ResolvedOrder]{
		Items: s.resolveAll(ctx, page.Items),
		Info:  page.Info,
	}, nil
}

// GetOrder loads a single order visible to the actor.
func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (ResolvedOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ResolvedOrder{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ResolvedOrder{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, actor); err != nil {
		return ResolvedOrder{}, err
	}

	resolved := ResolvedOrder{Order: &order}
	if s.resolver != nil {
		resolved.Post = s.resolver.Resolve(ctx, &order)
	}
	return resolved, nil
}

// UpdateStatus applies a role-gated lifecycle transition, appends the audit
// timeline entry, and emits the best-effort content status patch.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return Order{}, fmt.Errorf("%w: actor is required", ErrOrderUnauthorized)
	}
	target := cmd.TargetStatus
	if !domain.ValidOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, cmd.Actor); err != nil {
		return Order{}, err
	}
	if err := authorizeTransition(order.Status, target, cmd.Actor.Role); err != nil {
		return Order{}, err
	}

	now := s.now()
	order.Status = target
	order.Timeline = append(order.Timeline, TimelineEntry{
		Status:    target,
		Timestamp: now,
		Note:      trimmedPtr(cmd.Note),
		UpdatedBy: strings.TrimSpace(cmd.Actor.ID),
	})
	if target == domain.OrderStatusRejected {
		if reason := trimmedPtr(cmd.RejectionReason); reason != nil {
			order.RejectionReason = reason
		} else {
			order.RejectionReason = trimmedPtr(cmd.Note)
		}
	}
	if target == domain.OrderStatusCompleted && order.CompletedAt == nil {
		order.CompletedAt = &now
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	order.UpdatedAt = now

	s.publishContentPatch(ctx, order, now)

	return order, nil
}

// Delete removes an order regardless of its state. Admin only.
func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins may delete orders", ErrOrderUnauthorized)
	}

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.deleted", map[string]any{
		"order": orderID,
		"actor": cmd.Actor.ID,
	})
	return nil
}

// publishContentPatch emits the content status patch mapped to the order's
// new status. Failures are logged and swallowed so the transition stands.
func (s *orderService) publishContentPatch(ctx context.Context, order Order, now time.Time) {
	if s.contentSync == nil {
		return
	}
	target, ok := contentStatusForOrderStatus[order.Status]
	if !ok {
		return
	}
	ref := order.ContentRef()
	if ref == nil {
		return
	}

	err := s.contentSync.PublishStatusPatch(ctx, ContentStatusPatch{
		PostID:     ref.ID,
		Status:     target,
		OrderID:    order.ID,
		OccurredAt: now,
	})
	if err != nil {
		s.logger(ctx, "order.content.patch.failed", map[string]any{
			"order":  order.ID,
			"post":   ref.ID,
			"status": string(target),
			"error":  err.Error(),
		})
	}
}

func (s *orderService) resolveAll(ctx context.Context, orders []Order) []ResolvedOrder {
	if s.resolver != nil {
		return s.resolver.ResolveAll(ctx, orders)
	}
	resolved := make([]ResolvedOrder, len(orders))
	for i := range orders {
		resolved[i] = ResolvedOrder{Order: &orders[i]}
	}
	return resolved
}

func (s *orderService) resolvePrice(item OrderItem, website Website) int64 {
	if item.Price > 0 {
		return item.Price
	}
	return website.Pricing[item.Type]
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("AL-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// authorizeOrderAccess checks the actor stands on one side of the order.
func authorizeOrderAccess(order Order, actor Actor) error {
	actorID := strings.TrimSpace(actor.ID)
	if actorID == "" {
		return fmt.Errorf("%w: actor is required", ErrOrderUnauthorized)
	}
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleAdvertiser:
		if order.AdvertiserID == actorID {
			return nil
		}
	case domain.RolePublisher:
		if order.PublisherID == actorID {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s is not visible to actor %s", ErrOrderUnauthorized, order.ID, actorID)
}

// authorizeTransition enforces the per-role transition policy. Advertisers
// asking for a status outside their approve/reject pair get invalid input;
// a known pair requested from the wrong state is an invalid transition.
func authorizeTransition(current, target domain.OrderStatus, role domain.Role) error {
	if role == domain.RoleAdmin {
		return nil
	}
	if current.Terminal() {
		return fmt.Errorf("%w: order is already %s", ErrOrderInvalidTransition, current)
	}
	if role == domain.RoleAdvertiser && !slices.Contains(advertiserTargets, target) {
		return fmt.Errorf("%w: advertisers may only complete or reject", ErrOrderInvalidInput)
	}

	allowed := orderTransitionPolicy[role][current]
	if !slices.Contains(allowed, target) {
		return fmt.Errorf("%w: %s to %s is not allowed for %s", ErrOrderInvalidTransition, current, target, role)
	}
	return nil
}

func scopeForActor(actor Actor) (repositories.OrderScope, error) {
	actorID := strings.TrimSpace(actor.ID)
	if actorID == "" {
		return repositories.OrderScope{}, fmt.Errorf("%w: actor is required", ErrOrderUnauthorized)
	}
	switch actor.Role {
	case domain.RoleAdvertiser:
		return repositories.OrderScope{AdvertiserID: actorID}, nil
	case domain.RolePublisher:
		return repositories.OrderScope{PublisherID: actorID}, nil
	case domain.RoleAdmin:
		return repositories.OrderScope{}, nil
	}
	return repositories.OrderScope{}, fmt.Errorf("%w: unknown role %q", ErrOrderUnauthorized, actor.Role)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func valuePtr[T any](v T) *T {
	return &v
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
