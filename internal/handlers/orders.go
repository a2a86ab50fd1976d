package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/auth"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/httpx"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/pagination"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderStatusBodySize = 4 * 1024
	maxPlaceOrdersBodySize = 64 * 1024
)

// OrderHandlers exposes order placement, listing, and lifecycle endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	analytics services.AnalyticsService
	limiter   rateLimiter
}

// OrderOption adjusts optional handler behaviour.
type OrderOption func(*OrderHandlers)

// WithPlaceOrderRateLimit caps order placement per identity to the given
// number of requests per minute. Zero disables the limit.
func WithPlaceOrderRateLimit(perMinute int) OrderOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, time.Minute, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, analytics services.AnalyticsService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:     authn,
		orders:    orders,
		analytics: analytics,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrders)
	r.Get("/", h.listPlacedOrders)
	r.Get("/received", h.listReceivedOrders)
	r.Get("/stats", h.orderStats)
	r.Get("/trends", h.orderTrends)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.updateOrderStatus)
	r.Delete("/{orderID}", h.deleteOrder)
}

type placeOrderItemRequest struct {
	WebsiteID       string  `json:"websiteId"`
	Type            string  `json:"type"`
	PostID          *string `json:"postId"`
	LinkInsertionID *string `json:"linkInsertionId"`
	Price           int64   `json:"price"`
}

type placeOrdersRequest struct {
	Items []placeOrderItemRequest `json:"items"`
}

type updateOrderStatusRequest struct {
	Status          string  `json:"status"`
	Note            *string `json:"note"`
	RejectionReason *string `json:"rejectionReason"`
}

func (h *OrderHandlers) placeOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}
	if !identity.HasAnyRole(auth.RoleAdvertiser, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "only advertisers may place orders", http.StatusForbidden))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order placement requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxPlaceOrdersBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req placeOrdersRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			WebsiteID:       strings.TrimSpace(item.WebsiteID),
			Type:            domain.OrderType(strings.TrimSpace(item.Type)),
			PostID:          item.PostID,
			LinkInsertionID: item.LinkInsertionID,
			Price:           item.Price,
		})
	}

	result, err := h.orders.PlaceOrders(ctx, services.PlaceOrdersCommand{
		AdvertiserID: strings.TrimSpace(identity.UID),
		Items:        items,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	orders := make([]orderPayload, 0, len(result.Orders))
	for i := range result.Orders {
		orders = append(orders, buildOrderPayload(&result.Orders[i], nil))
	}
	writeJSONResponse(w, http.StatusCreated, placeOrdersResponse{
		Orders: orders,
		Count:  result.Count,
	})
}

func (h *OrderHandlers) listPlacedOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, auth.RoleAdvertiser)
}

func (h *OrderHandlers) listReceivedOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, auth.RolePublisher)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request, requiredRole string) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}
	if !identity.HasAnyRole(requiredRole, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
		return
	}

	query := r.URL.Query()
	cmd := services.ListOrdersCommand{
		Actor:  listActor(identity, requiredRole),
		Search: strings.TrimSpace(query.Get("search")),
	}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		if !domain.ValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}

	params, err := pagination.Parse(query, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.Page = domain.Page{Number: params.Page, Limit: params.Limit}

	result, err := h.orders.ListOrders(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(result.Items))
	for _, resolved := range result.Items {
		items = append(items, buildOrderPayload(resolved.Order, resolved.Post))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:      items,
		Pagination: buildPaginationPayload(result.Info),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	resolved, err := h.orders.GetOrder(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{
		Order: buildOrderPayload(resolved.Order, resolved.Post),
	})
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderStatusBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID:         orderID,
		Actor:           actorFromIdentity(identity),
		TargetStatus:    domain.OrderStatus(strings.TrimSpace(req.Status)),
		Note:            req.Note,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{
		Order: buildOrderPayload(&order, nil),
	})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.analytics != nil)
	if !ok {
		return
	}

	stats, err := h.analytics.OrderStats(ctx, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	counts := make(map[string]int64, len(stats.StatusCounts))
	for status, count := range stats.StatusCounts {
		counts[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, orderStatsResponse{
		StatusCounts:              counts,
		TotalRevenueFromCompleted: stats.TotalRevenueFromCompleted,
	})
}

func (h *OrderHandlers) orderTrends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.analytics != nil)
	if !ok {
		return
	}

	query := r.URL.Query()
	cmd := services.TrendQuery{
		Actor:  actorFromIdentity(identity),
		Period: strings.TrimSpace(query.Get("period")),
	}

	if raw := strings.TrimSpace(query.Get("startDate")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "startDate "+err.Error(), http.StatusBadRequest))
			return
		}
		cmd.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("endDate")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "endDate "+err.Error(), http.StatusBadRequest))
			return
		}
		cmd.To = &ts
	}
	if (cmd.From == nil) != (cmd.To == nil) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "startDate and endDate must be provided together", http.StatusBadRequest))
		return
	}

	series, err := h.analytics.OrderTrends(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]trendPointPayload, 0, len(series))
	for _, point := range series {
		counts := make(map[string]int64, len(point.Counts))
		for status, count := range point.Counts {
			counts[string(status)] = count
		}
		items = append(items, trendPointPayload{
			Date:   point.Date,
			Counts: counts,
			Total:  point.Total,
		})
	}
	writeJSONResponse(w, http.StatusOK, orderTrendsResponse{Items: items})
}

// Response payloads ----------------------------------------------------------

type placeOrdersResponse struct {
	Orders []orderPayload `json:"orders"`
	Count  int            `json:"count"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items      []orderPayload    `json:"items"`
	Pagination paginationPayload `json:"pagination"`
}

type paginationPayload struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	AdvertiserID    string                 `json:"advertiserId"`
	PublisherID     string                 `json:"publisherId"`
	WebsiteID       string                 `json:"websiteId"`
	Type            string                 `json:"type"`
	PostID          *string                `json:"postId,omitempty"`
	LinkInsertionID *string                `json:"linkInsertionId,omitempty"`
	Price           int64                  `json:"price"`
	Status          string                 `json:"status"`
	Timeline        []timelineEntryPayload `json:"timeline"`
	RejectionReason *string                `json:"rejectionReason,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
	CompletedAt     string                 `json:"completedAt,omitempty"`
	Post            *postPayload           `json:"post,omitempty"`
}

type timelineEntryPayload struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Note      *string `json:"note,omitempty"`
	UpdatedBy string  `json:"updatedBy"`
}

type postPayload struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Status        string              `json:"status"`
	Anchors       []anchorPairPayload `json:"anchors,omitempty"`
	CompletionURL *string             `json:"completionUrl,omitempty"`
}

type anchorPairPayload struct {
	Anchor string `json:"anchor"`
	URL    string `json:"url"`
}

type orderStatsResponse struct {
	StatusCounts              map[string]int64 `json:"statusCounts"`
	TotalRevenueFromCompleted int64            `json:"totalRevenueFromCompleted"`
}

type orderTrendsResponse struct {
	Items []trendPointPayload `json:"items"`
}

type trendPointPayload struct {
	Date   string           `json:"date"`
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func buildOrderPayload(order *domain.Order, post *domain.Post) orderPayload {
	if order == nil {
		return orderPayload{}
	}
	payload := orderPayload{
		ID:              strings.TrimSpace(order.ID),
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		AdvertiserID:    strings.TrimSpace(order.AdvertiserID),
		PublisherID:     strings.TrimSpace(order.PublisherID),
		WebsiteID:       strings.TrimSpace(order.WebsiteID),
		Type:            string(order.Type),
		PostID:          order.PostID,
		LinkInsertionID: order.LinkInsertionID,
		Price:           order.Price,
		Status:          string(order.Status),
		Timeline:        make([]timelineEntryPayload, 0, len(order.Timeline)),
		RejectionReason: order.RejectionReason,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		CompletedAt:     formatTime(pointerTime(order.CompletedAt)),
	}
	for _, entry := range order.Timeline {
		payload.Timeline = append(payload.Timeline, timelineEntryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if post != nil {
		payload.Post = buildPostPayload(post)
	}
	return payload
}

func buildPostPayload(post *domain.Post) *postPayload {
	payload := &postPayload{
		ID:            strings.TrimSpace(post.ID),
		Title:         post.Title,
		Status:        string(post.Status),
		CompletionURL: post.CompletionURL,
	}
	for _, anchor := range post.Anchors {
		payload.Anchors = append(payload.Anchors, anchorPairPayload{
			Anchor: anchor.Anchor,
			URL:    anchor.URL,
		})
	}
	return payload
}

func buildPaginationPayload(info domain.PageInfo) paginationPayload {
	return paginationPayload{
		Page:       info.Page,
		Limit:      info.Limit,
		Total:      info.Total,
		TotalPages: info.TotalPages,
	}
}

// listActor narrows an admin identity to the listing's view so admins browse
// the requested side rather than their own orders.
func listActor(identity *auth.Identity, requiredRole string) services.Actor {
	actor := actorFromIdentity(identity)
	if actor.Role == domain.RoleAdmin {
		return actor
	}
	actor.Role = domain.Role(requiredRole)
	return actor
}

func requireIdentity(ctx context.Context, w http.ResponseWriter, serviceReady bool) (*auth.Identity, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to act on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
