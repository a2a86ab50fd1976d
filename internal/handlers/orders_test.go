package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/auth"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

type stubOrderService struct {
	placeFn  func(context.Context, services.PlaceOrdersCommand) (services.PlaceOrdersResult, error)
	listFn   func(context.Context, services.ListOrdersCommand) (domain.PagedResult[services.ResolvedOrder], error)
	getFn    func(context.Context, string, services.Actor) (services.ResolvedOrder, error)
	updateFn func(context.Context, services.OrderStatusCommand) (services.Order, error)
	deleteFn func(context.Context, services.DeleteOrderCommand) error
}

func (s *stubOrderService) PlaceOrders(ctx context.Context, cmd services.PlaceOrdersCommand) (services.PlaceOrdersResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceOrdersResult{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, cmd services.ListOrdersCommand) (domain.PagedResult[services.ResolvedOrder], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.PagedResult[services.ResolvedOrder]{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, actor services.Actor) (services.ResolvedOrder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return services.ResolvedOrder{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

type stubAnalyticsService struct {
	statsFn  func(context.Context, services.Actor) (services.OrderStats, error)
	trendsFn func(context.Context, services.TrendQuery) ([]services.TrendPoint, error)
}

func (s *stubAnalyticsService) OrderStats(ctx context.Context, actor services.Actor) (services.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, actor)
	}
	return services.OrderStats{}, nil
}

func (s *stubAnalyticsService) OrderTrends(ctx context.Context, cmd services.TrendQuery) ([]services.TrendPoint, error) {
	if s.trendsFn != nil {
		return s.trendsFn(ctx, cmd)
	}
	return nil, nil
}

var (
	_ services.OrderService     = (*stubOrderService)(nil)
	_ services.AnalyticsService = (*stubAnalyticsService)(nil)
)

func newOrderRouter(handler *OrderHandlers) http.Handler {
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func advertiserIdentity() *auth.Identity {
	return &auth.Identity{UID: "adv-1", Roles: []string{auth.RoleAdvertiser}}
}

func publisherIdentity() *auth.Identity {
	return &auth.Identity{UID: "pub-1", Roles: []string{auth.RolePublisher}}
}

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	postID := "post-1"
	return domain.Order{
		ID:           "ord_1",
		OrderNumber:  "AL-2026-000001",
		AdvertiserID: "adv-1",
		PublisherID:  "pub-1",
		WebsiteID:    "site-1",
		Type:         domain.OrderTypeGuestPost,
		PostID:       &postID,
		Price:        25000,
		Status:       domain.OrderStatusRequested,
		Timeline: []domain.TimelineEntry{{
			Status:    domain.OrderStatusRequested,
			Timestamp: created,
			UpdatedBy: "adv-1",
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersPlaceOrders(t *testing.T) {
	var captured services.PlaceOrdersCommand
	service := &stubOrderService{
		placeFn: func(_ context.Context, cmd services.PlaceOrdersCommand) (services.PlaceOrdersResult, error) {
			captured = cmd
			order := sampleOrder()
			return services.PlaceOrdersResult{Orders: []services.Order{order}, Count: 1}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	body := `{"items":[{"websiteId":"site-1","type":"guestPost","postId":"post-1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AdvertiserID != "adv-1" {
		t.Fatalf("expected advertiser from identity, got %s", captured.AdvertiserID)
	}
	if len(captured.Items) != 1 || captured.Items[0].WebsiteID != "site-1" || captured.Items[0].Type != domain.OrderTypeGuestPost {
		t.Fatalf("unexpected items %#v", captured.Items)
	}

	var resp placeOrdersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || len(resp.Orders) != 1 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Orders[0].OrderNumber != "AL-2026-000001" || resp.Orders[0].Status != "requested" {
		t.Fatalf("unexpected order payload %#v", resp.Orders[0])
	}
	if len(resp.Orders[0].Timeline) != 1 || resp.Orders[0].Timeline[0].UpdatedBy != "adv-1" {
		t.Fatalf("unexpected timeline %#v", resp.Orders[0].Timeline)
	}
}

func TestOrderHandlersPlaceOrdersUnknownWebsite(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(context.Context, services.PlaceOrdersCommand) (services.PlaceOrdersResult, error) {
			return services.PlaceOrdersResult{}, fmt.Errorf("%w: website site-missing", services.ErrOrderNotFound)
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	body := `{"items":[{"websiteId":"site-missing","type":"guestPost"}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "site-missing") {
		t.Fatalf("expected body to name the website, got %s", rr.Body.String())
	}
}

func TestOrderHandlersPlaceOrdersRequiresAdvertiser(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersPlaceOrdersBadBodies(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, &stubAnalyticsService{}))

	cases := []struct {
		name string
		body []byte
		want int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"invalid json", []byte("{"), http.StatusBadRequest},
		{"oversized body", bytes.Repeat([]byte("a"), maxPlaceOrdersBodySize+1), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(tc.body))
			req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestOrderHandlersPlaceOrdersRateLimited(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(context.Context, services.PlaceOrdersCommand) (services.PlaceOrdersResult, error) {
			return services.PlaceOrdersResult{Count: 0}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}, WithPlaceOrderRateLimit(1)))

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))
		req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}

func TestOrderHandlersListPlacedOrders(t *testing.T) {
	var captured services.ListOrdersCommand
	order := sampleOrder()
	post := domain.Post{ID: "post-1", Title: "Launch recap", Status: domain.PostStatusPending}
	service := &stubOrderService{
		listFn: func(_ context.Context, cmd services.ListOrdersCommand) (domain.PagedResult[services.ResolvedOrder], error) {
			captured = cmd
			return domain.PagedResult[services.ResolvedOrder]{
				Items: []services.ResolvedOrder{{Order: &order, Post: &post}},
				Info:  domain.PageInfo{Page: 2, Limit: 10, Total: 11, TotalPages: 2},
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders?page=2&limit=10&status=requested&search=AL-2026", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.ID != "adv-1" || captured.Actor.Role != domain.RoleAdvertiser {
		t.Fatalf("unexpected actor %#v", captured.Actor)
	}
	if captured.Page.Number != 2 || captured.Page.Limit != 10 {
		t.Fatalf("unexpected page %#v", captured.Page)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusRequested {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
	if captured.Search != "AL-2026" {
		t.Fatalf("unexpected search %q", captured.Search)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].Post == nil || resp.Items[0].Post.ID != "post-1" {
		t.Fatalf("expected resolved post in payload, got %#v", resp.Items[0].Post)
	}
	if resp.Pagination.Page != 2 || resp.Pagination.Total != 11 || resp.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected pagination %#v", resp.Pagination)
	}
}

func TestOrderHandlersListReceivedOrders(t *testing.T) {
	var captured services.ListOrdersCommand
	service := &stubOrderService{
		listFn: func(_ context.Context, cmd services.ListOrdersCommand) (domain.PagedResult[services.ResolvedOrder], error) {
			captured = cmd
			return domain.PagedResult[services.ResolvedOrder]{Info: domain.PageInfo{Page: 1, Limit: 20}}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders/received", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Actor.Role != domain.RolePublisher || captured.Actor.ID != "pub-1" {
		t.Fatalf("unexpected actor %#v", captured.Actor)
	}
	if captured.Page.Number != 1 || captured.Page.Limit != defaultOrderPageSize {
		t.Fatalf("expected default pagination, got %#v", captured.Page)
	}
}

func TestOrderHandlersListOrdersInvalidParams(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, &stubAnalyticsService{}))

	for _, target := range []string{"/orders?status=bogus", "/orders?page=abc", "/orders?limit=-1"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	order := sampleOrder()
	post := domain.Post{ID: "post-1", Title: "Launch recap", Status: domain.PostStatusInProgress}
	service := &stubOrderService{
		getFn: func(_ context.Context, orderID string, actor services.Actor) (services.ResolvedOrder, error) {
			if orderID != "ord_1" {
				return services.ResolvedOrder{}, fmt.Errorf("%w: order %s", services.ErrOrderNotFound, orderID)
			}
			if actor.ID != "adv-1" {
				return services.ResolvedOrder{}, fmt.Errorf("%w: order ord_1 is not visible to actor %s", services.ErrOrderUnauthorized, actor.ID)
			}
			return services.ResolvedOrder{Order: &order, Post: &post}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ID != "ord_1" || resp.Order.Post == nil || resp.Order.Post.Status != "inProgress" {
		t.Fatalf("unexpected payload %#v", resp.Order)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/ord_404", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "adv-2", Roles: []string{auth.RoleAdvertiser}}))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.OrderStatusCommand
	service := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.TargetStatus
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	body := `{"status":"inProgress","note":"picked up"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusInProgress {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Actor.ID != "pub-1" || captured.Actor.Role != domain.RolePublisher {
		t.Fatalf("unexpected actor %#v", captured.Actor)
	}
	if captured.Note == nil || *captured.Note != "picked up" {
		t.Fatalf("unexpected note %v", captured.Note)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != "inProgress" {
		t.Fatalf("unexpected status %s", resp.Order.Status)
	}
}

func TestOrderHandlersUpdateStatusInvalidTransition(t *testing.T) {
	service := &stubOrderService{
		updateFn: func(context.Context, services.OrderStatusCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: order is already completed", services.ErrOrderInvalidTransition)
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":"inProgress"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_transition") {
		t.Fatalf("expected invalid_transition code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersDeleteOrder(t *testing.T) {
	var captured services.DeleteOrderCommand
	service := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) error {
			captured = cmd
			if cmd.Actor.Role != domain.RoleAdmin {
				return fmt.Errorf("%w: only admins may delete orders", services.ErrOrderUnauthorized)
			}
			return nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodDelete, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "ops-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("unexpected command %#v", captured)
	}

	req = httptest.NewRequest(http.MethodDelete, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersOrderStats(t *testing.T) {
	analytics := &stubAnalyticsService{
		statsFn: func(_ context.Context, actor services.Actor) (services.OrderStats, error) {
			if actor.ID != "pub-1" || actor.Role != domain.RolePublisher {
				return services.OrderStats{}, fmt.Errorf("unexpected actor %#v", actor)
			}
			return services.OrderStats{
				StatusCounts: map[domain.OrderStatus]int64{
					domain.OrderStatusRequested: 2,
					domain.OrderStatusCompleted: 7,
				},
				TotalRevenueFromCompleted: 175000,
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, analytics))

	req := httptest.NewRequest(http.MethodGet, "/orders/stats", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), publisherIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.TotalRevenueFromCompleted != 175000 || resp.StatusCounts["completed"] != 7 {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestOrderHandlersOrderTrends(t *testing.T) {
	var captured services.TrendQuery
	analytics := &stubAnalyticsService{
		trendsFn: func(_ context.Context, cmd services.TrendQuery) ([]services.TrendPoint, error) {
			captured = cmd
			return []services.TrendPoint{{
				Date:   "2026-03-04",
				Counts: map[domain.OrderStatus]int64{domain.OrderStatusRequested: 2},
				Total:  2,
			}}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, analytics))

	req := httptest.NewRequest(http.MethodGet, "/orders/trends?period=30d", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Period != "30d" {
		t.Fatalf("unexpected period %q", captured.Period)
	}

	var resp orderTrendsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Counts["requested"] != 2 {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestOrderHandlersOrderTrendsRequiresBothBounds(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders/trends?startDate=2026-03-01", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}, &stubAnalyticsService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), advertiserIdentity()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
