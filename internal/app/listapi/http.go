package listapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/listkeeper/project/internal/app/autosave"
	"github.com/listkeeper/project/internal/app/catalog"
	"github.com/listkeeper/project/internal/app/list"
	"github.com/listkeeper/project/internal/contracts"
	platformauth "github.com/listkeeper/project/internal/platform/auth"
)

type Handler struct {
	Lists         *list.Service
	Autosave      *autosave.Service
	TokenManager  platformauth.Manager
	AllowedOrigin string
}

func NewHandler(lists *list.Service, autosaveSvc *autosave.Service, tokenManager platformauth.Manager, allowedOrigin string) *Handler {
	return &Handler{
		Lists:         lists,
		Autosave:      autosaveSvc,
		TokenManager:  tokenManager,
		AllowedOrigin: allowedOrigin,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)

		authR.Post("/api/v1/lists", h.handleCreateList)
		authR.Get("/api/v1/lists", h.handleListLists)
		authR.Get("/api/v1/lists/{listID}", h.handleGetList)
		authR.Delete("/api/v1/lists/{listID}", h.handleDeleteList)
		authR.Patch("/api/v1/lists/{listID}/activate", h.handleActivate)
		authR.Post("/api/v1/lists/{listID}/complete", h.handleComplete)
		authR.Post("/api/v1/lists/{listID}/reuse", h.handleReuse)
		authR.Patch("/api/v1/lists/{listID}/editing", h.handleEditing)
		authR.Post("/api/v1/lists/{listID}/finish-edit", h.handleFinishEdit)
		authR.Post("/api/v1/lists/{listID}/items", h.handleAddItem)
		authR.Patch("/api/v1/lists/{listID}/items/{itemID}", h.handlePatchItem)
		authR.Delete("/api/v1/lists/{listID}/items/{itemID}", h.handleDeleteItem)

		authR.Get("/api/v1/autosave", h.handleGetAutosave)
		authR.Put("/api/v1/autosave", h.handlePutAutosave)
		authR.Delete("/api/v1/autosave", h.handleDeleteAutosave)
		authR.Post("/api/v1/autosave/reset", h.handleResetAutosave)
	})

	return r
}

type createListRequest struct {
	Title string `json:"title"`
}

type activateRequest struct {
	Status string `json:"status"`
}

type completeRequest struct {
	CheckedItemIDs []string `json:"checked_item_ids"`
}

type editingRequest struct {
	IsEditing bool `json:"is_editing"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Note      string `json:"note"`
}

type patchItemRequest struct {
	Name    *string `json:"name"`
	Qty     *int    `json:"qty"`
	Checked *bool   `json:"checked"`
	Note    *string `json:"note"`
}

type resetAutosaveRequest struct {
	TargetDraftID string `json:"target_draft_id"`
}

type listDetailResponse struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Status      string                  `json:"status"`
	ActivatedAt *time.Time              `json:"activated_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	Items       []contracts.ListItemDTO `json:"items"`
}

func (h *Handler) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	summary, err := h.Lists.Create(r.Context(), claims.Subject, req.Title)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) handleListLists(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var status list.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, ok := list.ParseStatus(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		status = parsed
	}
	lists, err := h.Lists.Lists(r.Context(), claims.Subject, status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (h *Handler) handleGetList(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	l, err := h.Lists.Get(r.Context(), chi.URLParam(r, "listID"), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listDetailResponse{
		ID:          l.ID,
		Title:       l.Title,
		Status:      string(l.Status),
		ActivatedAt: l.ActivatedAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		Items:       l.ItemDTOs(),
	})
}

func (h *Handler) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Lists.Delete(r.Context(), chi.URLParam(r, "listID"), claims.Subject); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	target, ok := list.ParseStatus(req.Status)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	claims := claimsFromContext(r.Context())
	summary, err := h.Lists.UpdateStatus(r.Context(), chi.URLParam(r, "listID"), claims.Subject, target, nil)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	summary, err := h.Lists.UpdateStatus(r.Context(), chi.URLParam(r, "listID"), claims.Subject, list.StatusCompleted, req.CheckedItemIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleReuse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	result, err := h.Lists.Reuse(r.Context(), chi.URLParam(r, "listID"), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEditing(w http.ResponseWriter, r *http.Request) {
	var req editingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := h.Lists.StartEditing(r.Context(), chi.URLParam(r, "listID"), claims.Subject, req.IsEditing); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinishEdit(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Lists.FinishEdit(r.Context(), chi.URLParam(r, "listID"), claims.Subject); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddItem adds either a catalog item (product_id set) or a manual item
// (name set); the body shape discriminates.
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	listID := chi.URLParam(r, "listID")

	var (
		item contracts.ListItemDTO
		err  error
	)
	switch {
	case strings.TrimSpace(req.ProductID) != "":
		item, err = h.Lists.AddCatalogItem(r.Context(), listID, claims.Subject, strings.TrimSpace(req.ProductID), req.Qty, req.Note)
	case strings.TrimSpace(req.Name) != "":
		item, err = h.Lists.AddManualItem(r.Context(), listID, claims.Subject, strings.TrimSpace(req.Name), req.Qty, req.Note)
	default:
		h.writeError(w, http.StatusBadRequest, "product_id or name is required")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	var req patchItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	item, err := h.Lists.UpdateItem(r.Context(), chi.URLParam(r, "listID"), claims.Subject, chi.URLParam(r, "itemID"), list.ItemPatch{
		Name:    req.Name,
		Qty:     req.Qty,
		Checked: req.Checked,
		Note:    req.Note,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Lists.RemoveItem(r.Context(), chi.URLParam(r, "listID"), claims.Subject, chi.URLParam(r, "itemID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetAutosave(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	draft, err := h.Autosave.Get(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if draft == nil {
		h.writeError(w, http.StatusNotFound, "no autosave draft")
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

func (h *Handler) handlePutAutosave(w http.ResponseWriter, r *http.Request) {
	var payload contracts.DraftPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	summary, err := h.Autosave.Put(r.Context(), claims.Subject, payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleDeleteAutosave(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Autosave.Delete(r.Context(), claims.Subject); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetAutosave(w http.ResponseWriter, r *http.Request) {
	var req resetAutosaveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	claims := claimsFromContext(r.Context())
	if err := h.Autosave.Reset(r.Context(), claims.Subject, req.TargetDraftID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, list.ErrListNotFound):
		h.writeError(w, http.StatusNotFound, "list not found")
	case errors.Is(err, list.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, catalog.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, list.ErrListForbidden):
		h.writeError(w, http.StatusForbidden, "list does not belong to requester")
	case errors.Is(err, list.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrUpstreamUnavailable):
		h.writeError(w, http.StatusBadGateway, "catalog unavailable")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := strings.TrimSpace(h.AllowedOrigin)
		if allowed == "" {
			allowed = "*"
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.TokenManager.Parse(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}
