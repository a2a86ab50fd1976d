package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/httpx"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

const maxPushEnvelopeSize = 64 * 1024

// InternalHandlers serves the operator-only endpoints mounted under /internal.
type InternalHandlers struct {
	contentSync services.ContentSyncService
}

// NewInternalHandlers constructs the internal handler set.
func NewInternalHandlers(contentSync services.ContentSyncService) *InternalHandlers {
	return &InternalHandlers{contentSync: contentSync}
}

// Routes registers the /internal endpoints. Authentication is applied by the
// router's internal middleware chain.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/content-sync", h.contentSyncPush)
}

// pushEnvelope is the wrapper Pub/Sub wraps around pushed messages.
type pushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime time.Time         `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type contentSyncMessage struct {
	PostID     string    `json:"postId"`
	Status     string    `json:"status"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (h *InternalHandlers) contentSyncPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contentSync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_sync_unavailable", "content sync service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPushEnvelopeSize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid push envelope", http.StatusBadRequest))
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "message data is not valid base64", http.StatusBadRequest))
		return
	}

	var msg contentSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "message data is not valid JSON", http.StatusBadRequest))
		return
	}

	err = h.contentSync.ApplyStatusPatch(ctx, services.ContentStatusPatch{
		PostID:     strings.TrimSpace(msg.PostID),
		Status:     domain.PostStatus(strings.TrimSpace(msg.Status)),
		OrderID:    strings.TrimSpace(msg.OrderID),
		OccurredAt: msg.OccurredAt,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_sync_failed", err.Error(), http.StatusBadRequest))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
