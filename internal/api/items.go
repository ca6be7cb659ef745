package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/resourceiq/resourceiq/internal/item"
)

// ItemStore is the slice of the item store the API consumes.
type ItemStore interface {
	Create(ctx context.Context, p item.CreateParams) (*item.Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*item.Item, error)
	ListAll(ctx context.Context, limit, offset int) ([]*item.Item, int, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*item.Item, int, error)
	Update(ctx context.Context, id uuid.UUID, p item.UpdateParams) (*item.Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const maxItemTitleLen = 255

type itemListResponse struct {
	Data  []*item.Item `json:"data"`
	Count int          `json:"count"`
}

type itemCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type itemUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// itemHandler serves the item CRUD routes.
type itemHandler struct {
	items  ItemStore
	logger *slog.Logger
}

// list handles GET /api/v1/items/. Regular users see their own items,
// admins see everything.
func (h *itemHandler) list(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	skip, err := queryInt(r, "skip", 0, 0, 1<<31-1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	limit, err := queryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	var (
		items []*item.Item
		count int
	)
	if isAdmin(u) {
		items, count, err = h.items.ListAll(r.Context(), limit, skip)
	} else {
		items, count, err = h.items.ListByOwner(r.Context(), u.ID, limit, skip)
	}
	if err != nil {
		h.logger.Error("listing items", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, itemListResponse{Data: items, Count: count})
}

// create handles POST /api/v1/items/.
func (h *itemHandler) create(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req itemCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.Title == "" || len(req.Title) > maxItemTitleLen {
		WriteError(w, http.StatusBadRequest, "validation_error", "title must be between 1 and 255 characters", h.logger)
		return
	}

	created, err := h.items.Create(r.Context(), item.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     u.ID,
	})
	if err != nil {
		h.logger.Error("creating item", "error", err, "owner_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, created)
}

// fetchOwned loads an item and enforces the owner-or-admin rule. On
// failure the response has already been written and nil is returned.
func (h *itemHandler) fetchOwned(w http.ResponseWriter, r *http.Request) *item.Item {
	u, _ := currentUser(r.Context())

	id, err := pathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return nil
	}

	it, err := h.items.GetByID(r.Context(), id)
	if errors.Is(err, item.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "item_not_found", item.ErrNotFound.Error(), h.logger)
		return nil
	}
	if err != nil {
		h.logger.Error("loading item", "error", err, "item_id", id)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return nil
	}
	if it.OwnerID != u.ID && !isAdmin(u) {
		WriteError(w, http.StatusForbidden, "forbidden", "not enough permissions", h.logger)
		return nil
	}
	return it
}

// get handles GET /api/v1/items/{id}.
func (h *itemHandler) get(w http.ResponseWriter, r *http.Request) {
	it := h.fetchOwned(w, r)
	if it == nil {
		return
	}
	WriteJSON(w, http.StatusOK, it)
}

// update handles PUT /api/v1/items/{id}.
func (h *itemHandler) update(w http.ResponseWriter, r *http.Request) {
	it := h.fetchOwned(w, r)
	if it == nil {
		return
	}

	var req itemUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.Title != nil && (*req.Title == "" || len(*req.Title) > maxItemTitleLen) {
		WriteError(w, http.StatusBadRequest, "validation_error", "title must be between 1 and 255 characters", h.logger)
		return
	}

	updated, err := h.items.Update(r.Context(), it.ID, item.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
	})
	if errors.Is(err, item.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "item_not_found", item.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("updating item", "error", err, "item_id", it.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// delete handles DELETE /api/v1/items/{id}.
func (h *itemHandler) delete(w http.ResponseWriter, r *http.Request) {
	it := h.fetchOwned(w, r)
	if it == nil {
		return
	}

	if err := h.items.Delete(r.Context(), it.ID); err != nil && !errors.Is(err, item.ErrNotFound) {
		h.logger.Error("deleting item", "error", err, "item_id", it.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "item deleted successfully"})
}
