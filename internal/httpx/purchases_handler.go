package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/meridalabs/storefront/internal/kafka"
	"github.com/meridalabs/storefront/internal/redisx"
	"github.com/meridalabs/storefront/internal/store"
)

// EventPublisher is what the handler needs from a kafka producer.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type PurchasesHandler struct {
	Engine    *store.Engine
	Redis     *redis.Client
	Created   EventPublisher
	Updated   EventPublisher
	Cancelled EventPublisher
	Service   string
}

func (h *PurchasesHandler) Register(r *chi.Mux) {
	r.Post("/api/purchases", h.createPurchase)
	r.Get("/api/purchases", h.listPurchases)
	r.Get("/api/purchases/{id}", h.getPurchase)
	r.Put("/api/purchases/{id}", h.updatePurchase)
	r.Delete("/api/purchases/{id}", h.cancelPurchase)
}

type CreatePurchaseReq struct {
	UserID  string                `json:"user_id"`
	Status  store.Status          `json:"status"`
	Details []store.LineItemInput `json:"details"`
}

type UpdatePurchaseReq struct {
	UserID  *string                `json:"user_id"`
	Status  *store.Status          `json:"status"`
	Details *[]store.LineItemInput `json:"details"`
}

func (h *PurchasesHandler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Engine.CreatePurchase(ctx, req.UserID, req.Status, req.Details)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cachePurchase(ctx, p)
	h.publish(h.Created, store.EventPurchaseCreated, p.ID, requestTrace(r), store.PurchaseCreatedPayload{
		PurchaseID: p.ID,
		UserID:     p.UserID,
		Status:     p.Status,
		TotalCents: p.TotalCents,
		Items:      toLineQty(req.Details),
	})

	writeJSON(w, http.StatusCreated, p)
}

func (h *PurchasesHandler) listPurchases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ps, err := h.Engine.ListPurchases(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *PurchasesHandler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB as the source of truth
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPurchase, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	p, err := h.Engine.GetPurchase(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cachePurchase(ctx, p)
	writeJSON(w, http.StatusOK, p)
}

func (h *PurchasesHandler) updatePurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdatePurchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	patch := store.PurchasePatch{UserID: req.UserID, Status: req.Status}
	if req.Details != nil {
		patch.Items = *req.Details
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.UpdatePurchase(ctx, id, patch); err != nil {
		writeError(w, err)
		return
	}

	h.invalidatePurchase(ctx, id)
	payload := store.PurchaseUpdatedPayload{PurchaseID: id, ItemsReplaced: req.Details != nil}
	if req.Details != nil {
		payload.Items = toLineQty(*req.Details)
	}
	if req.UserID != nil {
		payload.UserID = *req.UserID
	}
	if req.Status != nil {
		payload.Status = *req.Status
	}
	h.publish(h.Updated, store.EventPurchaseUpdated, id, requestTrace(r), payload)

	writeJSON(w, http.StatusOK, map[string]string{"message": "purchase updated", "purchase_id": id})
}

func (h *PurchasesHandler) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.CancelPurchase(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	h.invalidatePurchase(ctx, id)
	h.publish(h.Cancelled, store.EventPurchaseCancelled, id, requestTrace(r),
		store.PurchaseCancelledPayload{PurchaseID: id})

	writeJSON(w, http.StatusOK, map[string]string{"message": "purchase cancelled", "purchase_id": id})
}

func (h *PurchasesHandler) cachePurchase(ctx context.Context, p *store.Purchase) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyPurchase, p.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLPurchaseCache).Err()
}

func (h *PurchasesHandler) invalidatePurchase(ctx context.Context, id string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyPurchase, id)).Err()
}

func (h *PurchasesHandler) publish(p EventPublisher, eventType, purchaseID, traceID string, payload any) {
	if p == nil {
		return
	}
	ev := store.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: purchaseID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(store.PartitionKey(purchaseID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func requestTrace(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

func toLineQty(items []store.LineItemInput) []store.LineQty {
	out := make([]store.LineQty, 0, len(items))
	for _, it := range items {
		out = append(out, store.LineQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
