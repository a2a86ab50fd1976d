package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	pfirestore "github.com/kento-1999/Alpus-links-sub000/internal/platform/firestore"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

const websitesCollection = "websites"

// WebsiteRepository reads catalog entries from Firestore.
type WebsiteRepository struct {
	base *pfirestore.BaseRepository[websiteDocument]
}

// NewWebsiteRepository constructs a Firestore-backed website repository.
func NewWebsiteRepository(provider *pfirestore.Provider) (*WebsiteRepository, error) {
	if provider == nil {
		return nil, errors.New("website repository requires firestore provider")
	}
	return &WebsiteRepository{
		base: pfirestore.NewBaseRepository[websiteDocument](provider, websitesCollection, nil, nil),
	}, nil
}

// FindByID loads a single catalog entry.
func (r *WebsiteRepository) FindByID(ctx context.Context, websiteID string) (domain.Website, error) {
	if r == nil || r.base == nil {
		return domain.Website{}, errors.New("website repository not initialised")
	}
	id := strings.TrimSpace(websiteID)
	if id == "" {
		return domain.Website{}, errors.New("website repository: website id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Website{}, err
	}

	data := doc.Data
	website := domain.Website{
		ID:          doc.ID,
		PublisherID: data.PublisherID,
		Domain:      data.Domain,
		CreatedAt:   data.CreatedAt,
		UpdatedAt:   doc.UpdateTime,
	}
	if len(data.Pricing) > 0 {
		website.Pricing = make(map[domain.OrderType]int64, len(data.Pricing))
		for service, price := range data.Pricing {
			website.Pricing[domain.OrderType(service)] = price
		}
	}
	return website, nil
}

type websiteDocument struct {
	PublisherID string           `firestore:"publisherId"`
	Domain      string           `firestore:"domain"`
	Pricing     map[string]int64 `firestore:"pricing,omitempty"`
	CreatedAt   time.Time        `firestore:"createdAt"`
}

var _ repositories.WebsiteRepository = (*WebsiteRepository)(nil)
