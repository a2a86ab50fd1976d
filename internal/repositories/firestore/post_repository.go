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

const postsCollection = "posts"

// PostRepository reads and patches content records within Firestore.
type PostRepository struct {
	base *pfirestore.BaseRepository[postDocument]
}

// NewPostRepository constructs a Firestore-backed post repository.
func NewPostRepository(provider *pfirestore.Provider) (*PostRepository, error) {
	if provider == nil {
		return nil, errors.New("post repository requires firestore provider")
	}
	return &PostRepository{
		base: pfirestore.NewBaseRepository[postDocument](provider, postsCollection, nil, nil),
	}, nil
}

// FindByID loads a single content record.
func (r *PostRepository) FindByID(ctx context.Context, postID string) (domain.Post, error) {
	if r == nil || r.base == nil {
		return domain.Post{}, errors.New("post repository not initialised")
	}
	id := strings.TrimSpace(postID)
	if id == "" {
		return domain.Post{}, errors.New("post repository: post id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}

	data := doc.Data
	post := domain.Post{
		ID:           doc.ID,
		AdvertiserID: data.AdvertiserID,
		Title:        data.Title,
		Requirements: data.Requirements,
		Status:       domain.PostStatus(data.Status),
		CreatedAt:    data.CreatedAt,
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return data.UpdatedAt
		}(),
	}
	for _, anchor := range data.Anchors {
		post.Anchors = append(post.Anchors, domain.AnchorPair{Anchor: anchor.Anchor, URL: anchor.URL})
	}
	if data.CompletionURL != "" {
		url := data.CompletionURL
		post.CompletionURL = &url
	}
	return post, nil
}

// UpdateStatus patches the lifecycle status of a content record.
func (r *PostRepository) UpdateStatus(ctx context.Context, postID string, status domain.PostStatus, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("post repository not initialised")
	}
	id := strings.TrimSpace(postID)
	if id == "" {
		return errors.New("post repository: post id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

type postDocument struct {
	AdvertiserID  string           `firestore:"advertiserId"`
	Title         string           `firestore:"title"`
	Requirements  string           `firestore:"requirements,omitempty"`
	Anchors       []anchorDocument `firestore:"anchors,omitempty"`
	CompletionURL string           `firestore:"completionUrl,omitempty"`
	Status        string           `firestore:"status"`
	CreatedAt     time.Time        `firestore:"createdAt"`
	UpdatedAt     time.Time        `firestore:"updatedAt"`
}

type anchorDocument struct {
	Anchor string `firestore:"anchor"`
	URL    string `firestore:"url"`
}

var _ repositories.PostRepository = (*PostRepository)(nil)
