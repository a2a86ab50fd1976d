package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

type stubPostRepo struct {
	findFn   func(context.Context, string) (domain.Post, error)
	updateFn func(context.Context, string, domain.PostStatus, time.Time) error
}

func (s *stubPostRepo) FindByID(ctx context.Context, postID string) (domain.Post, error) {
	if s.findFn != nil {
		return s.findFn(ctx, postID)
	}
	return domain.Post{}, errors.New("not implemented")
}

func (s *stubPostRepo) UpdateStatus(ctx context.Context, postID string, status domain.PostStatus, updatedAt time.Time) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, postID, status, updatedAt)
	}
	return nil
}

var _ repositories.PostRepository = (*stubPostRepo)(nil)

func TestResolveFollowsPostReference(t *testing.T) {
	posts := &stubPostRepo{
		findFn: func(_ context.Context, postID string) (domain.Post, error) {
			if postID != "post-1" {
				t.Fatalf("unexpected lookup %s", postID)
			}
			return domain.Post{ID: "post-1", Title: "Launch recap", Status: domain.PostStatusPending}, nil
		},
	}
	resolver, err := NewContentResolver(ContentResolverDeps{Posts: posts})
	if err != nil {
		t.Fatalf("NewContentResolver returned error: %v", err)
	}

	order := storedOrder(domain.OrderStatusRequested)
	post := resolver.Resolve(context.Background(), &order)
	if post == nil || post.ID != "post-1" {
		t.Fatalf("expected post-1, got %v", post)
	}
}

func TestResolveFollowsLegacyLinkInsertionReference(t *testing.T) {
	var looked []string
	posts := &stubPostRepo{
		findFn: func(_ context.Context, postID string) (domain.Post, error) {
			looked = append(looked, postID)
			return domain.Post{ID: postID, Status: domain.PostStatusApproved}, nil
		},
	}
	resolver, err := NewContentResolver(ContentResolverDeps{Posts: posts})
	if err != nil {
		t.Fatalf("NewContentResolver returned error: %v", err)
	}

	linkID := "legacy-li-9"
	order := storedOrder(domain.OrderStatusRequested)
	order.Type = domain.OrderTypeLinkInsertion
	order.PostID = nil
	order.LinkInsertionID = &linkID

	post := resolver.Resolve(context.Background(), &order)
	if post == nil || post.ID != "legacy-li-9" {
		t.Fatalf("expected legacy reference resolved, got %v", post)
	}
	if len(looked) != 1 || looked[0] != "legacy-li-9" {
		t.Errorf("unexpected lookups %v", looked)
	}
}

func TestResolveDanglingReferenceDegrades(t *testing.T) {
	var events []string
	posts := &stubPostRepo{
		findFn: func(context.Context, string) (domain.Post, error) {
			return domain.Post{}, &repoError{msg: "post not found", notFound: true}
		},
	}
	resolver, err := NewContentResolver(ContentResolverDeps{
		Posts: posts,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewContentResolver returned error: %v", err)
	}

	order := storedOrder(domain.OrderStatusRequested)
	if post := resolver.Resolve(context.Background(), &order); post != nil {
		t.Fatalf("expected nil post for dangling reference, got %v", post)
	}
	if len(events) != 1 || events[0] != "content.resolve.missing" {
		t.Errorf("expected content.resolve.missing logged, got %v", events)
	}
}

func TestResolveOrderWithoutReference(t *testing.T) {
	resolver, err := NewContentResolver(ContentResolverDeps{Posts: &stubPostRepo{}})
	if err != nil {
		t.Fatalf("NewContentResolver returned error: %v", err)
	}

	order := storedOrder(domain.OrderStatusRequested)
	order.PostID = nil
	if post := resolver.Resolve(context.Background(), &order); post != nil {
		t.Fatalf("expected nil post when nothing is linked, got %v", post)
	}
	if post := resolver.Resolve(context.Background(), nil); post != nil {
		t.Fatalf("expected nil post for nil order, got %v", post)
	}
}

func TestResolveAllIsolatesFailures(t *testing.T) {
	posts := &stubPostRepo{
		findFn: func(_ context.Context, postID string) (domain.Post, error) {
			if postID == "post-missing" {
				return domain.Post{}, &repoError{msg: "post not found", notFound: true}
			}
			return domain.Post{ID: postID}, nil
		},
	}
	resolver, err := NewContentResolver(ContentResolverDeps{Posts: posts})
	if err != nil {
		t.Fatalf("NewContentResolver returned error: %v", err)
	}

	missing := "post-missing"
	good := storedOrder(domain.OrderStatusRequested)
	broken := storedOrder(domain.OrderStatusRequested)
	broken.ID = "ord_2"
	broken.PostID = &missing

	resolved := resolver.ResolveAll(context.Background(), []Order{good, broken})
	if len(resolved) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(resolved))
	}
	if resolved[0].Post == nil || resolved[0].Post.ID != "post-1" {
		t.Errorf("expected first row resolved, got %v", resolved[0].Post)
	}
	if resolved[1].Post != nil {
		t.Errorf("expected second row to degrade to nil, got %v", resolved[1].Post)
	}
	if resolved[1].Order == nil || resolved[1].Order.ID != "ord_2" {
		t.Errorf("expected order carried through, got %v", resolved[1].Order)
	}
}

func TestApplyStatusPatchUpdatesRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var gotID string
	var gotStatus domain.PostStatus
	var gotAt time.Time
	posts := &stubPostRepo{
		updateFn: func(_ context.Context, postID string, status domain.PostStatus, updatedAt time.Time) error {
			gotID, gotStatus, gotAt = postID, status, updatedAt
			return nil
		},
	}
	svc, err := NewContentSyncService(ContentSyncServiceDeps{Posts: posts, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewContentSyncService returned error: %v", err)
	}

	err = svc.ApplyStatusPatch(context.Background(), ContentStatusPatch{
		PostID:  "post-1",
		Status:  domain.PostStatusInProgress,
		OrderID: "ord_1",
	})
	if err != nil {
		t.Fatalf("ApplyStatusPatch returned error: %v", err)
	}
	if gotID != "post-1" || gotStatus != domain.PostStatusInProgress || !gotAt.Equal(now) {
		t.Errorf("unexpected update %s %s %s", gotID, gotStatus, gotAt)
	}
}

func TestApplyStatusPatchValidation(t *testing.T) {
	svc, err := NewContentSyncService(ContentSyncServiceDeps{Posts: &stubPostRepo{}})
	if err != nil {
		t.Fatalf("NewContentSyncService returned error: %v", err)
	}

	if err := svc.ApplyStatusPatch(context.Background(), ContentStatusPatch{Status: domain.PostStatusApproved}); err == nil {
		t.Errorf("expected error for missing post id")
	}
	if err := svc.ApplyStatusPatch(context.Background(), ContentStatusPatch{PostID: "post-1", Status: "published"}); err == nil {
		t.Errorf("expected error for unknown status")
	}
}

func TestApplyStatusPatchMissingRecordDropped(t *testing.T) {
	var events []string
	posts := &stubPostRepo{
		updateFn: func(context.Context, string, domain.PostStatus, time.Time) error {
			return &repoError{msg: "post not found", notFound: true}
		},
	}
	svc, err := NewContentSyncService(ContentSyncServiceDeps{
		Posts: posts,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewContentSyncService returned error: %v", err)
	}

	err = svc.ApplyStatusPatch(context.Background(), ContentStatusPatch{
		PostID: "post-gone",
		Status: domain.PostStatusApproved,
	})
	if err != nil {
		t.Fatalf("expected missing record to be dropped, got %v", err)
	}
	if len(events) != 1 || events[0] != "content.sync.missing" {
		t.Errorf("expected content.sync.missing logged, got %v", events)
	}
}
