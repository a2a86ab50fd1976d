package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

// ContentResolverDeps bundles collaborators for the cross-reference resolver.
type ContentResolverDeps struct {
	Posts  repositories.PostRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type contentResolver struct {
	posts  repositories.PostRepository
	logger func(context.Context, string, map[string]any)
}

// NewContentResolver constructs the read-side resolver that recovers the
// content record an order points at. Historical linkInsertion orders store
// the content id in the linkInsertionId field; the resolver treats both
// linkage fields as pointers into the same posts collection. Resolution is
// read-side only and never rewrites the stored reference.
func NewContentResolver(deps ContentResolverDeps) (ContentResolver, error) {
	if deps.Posts == nil {
		return nil, errors.New("content resolver: post repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contentResolver{
		posts:  deps.Posts,
		logger: logger,
	}, nil
}

// Resolve returns the content record for the order, or nil when the order
// carries no linkage or the record cannot be loaded. Lookup failures degrade
// gracefully so a dangling reference never breaks an order read.
func (r *contentResolver) Resolve(ctx context.Context, order *Order) *Post {
	if order == nil {
		return nil
	}
	ref := order.ContentRef()
	if ref == nil {
		return nil
	}

	post, err := r.posts.FindByID(ctx, ref.ID)
	if err != nil {
		event := "content.resolve.failed"
		if isRepositoryNotFound(err) {
			event = "content.resolve.missing"
		}
		r.logger(ctx, event, map[string]any{
			"order": order.ID,
			"post":  ref.ID,
			"kind":  string(ref.Kind),
			"error": err.Error(),
		})
		return nil
	}
	return &post
}

// ResolveAll resolves every order in the slice independently. One dangling
// reference does not affect the neighbouring rows.
func (r *contentResolver) ResolveAll(ctx context.Context, orders []Order) []ResolvedOrder {
	resolved := make([]ResolvedOrder, len(orders))
	for i := range orders {
		resolved[i] = ResolvedOrder{
			Order: &orders[i],
			Post:  r.Resolve(ctx, &orders[i]),
		}
	}
	return resolved
}

// ContentSyncServiceDeps bundles collaborators for applying status patches.
type ContentSyncServiceDeps struct {
	Posts  repositories.PostRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type contentSyncService struct {
	posts  repositories.PostRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewContentSyncService constructs the consumer side of the content status
// outbox. It applies patches published during order transitions.
func NewContentSyncService(deps ContentSyncServiceDeps) (ContentSyncService, error) {
	if deps.Posts == nil {
		return nil, errors.New("content sync: post repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contentSyncService{
		posts:  deps.Posts,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// ApplyStatusPatch patches the content record named by the message. A missing
// record is logged and dropped rather than retried; delivery is at most once.
func (s *contentSyncService) ApplyStatusPatch(ctx context.Context, cmd ContentStatusPatch) error {
	if cmd.PostID == "" {
		return errors.New("content sync: post id is required")
	}
	switch cmd.Status {
	case domain.PostStatusPending, domain.PostStatusInProgress, domain.PostStatusApproved, domain.PostStatusRejected:
	default:
		return errors.New("content sync: unknown post status " + string(cmd.Status))
	}

	if err := s.posts.UpdateStatus(ctx, cmd.PostID, cmd.Status, s.clock()); err != nil {
		if isRepositoryNotFound(err) {
			s.logger(ctx, "content.sync.missing", map[string]any{
				"post":  cmd.PostID,
				"order": cmd.OrderID,
			})
			return nil
		}
		return err
	}

	s.logger(ctx, "content.sync.applied", map[string]any{
		"post":   cmd.PostID,
		"order":  cmd.OrderID,
		"status": string(cmd.Status),
	})
	return nil
}
