package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/quickcart/internal/auth"
	"github.com/dukerupert/quickcart/internal/docstore"
	"github.com/dukerupert/quickcart/internal/middleware"
)

const (
	codeDocumentNotFound = "document/not-found"
	codeInvalidDocument  = "document/invalid-argument"
)

// DocumentHandler serves the caller's own document. Documents are keyed by
// uid; a caller may only touch the document under their own uid.
type DocumentHandler struct {
	docs   docstore.Store
	logger *slog.Logger
}

func NewDocumentHandler(docs docstore.Store, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, logger: logger}
}

func (h *DocumentHandler) ownUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := chi.URLParam(r, "uid")
	if uid == "" || uid != auth.UserID(r.Context()) {
		middleware.WriteError(w, http.StatusForbidden, middleware.CodeUnauthorized, "Missing or insufficient permissions")
		return "", false
	}
	return uid, true
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.ownUID(w, r)
	if !ok {
		return
	}

	doc, found, err := h.docs.Get(r.Context(), uid)
	if err != nil {
		h.logger.Error("read document", "uid", uid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		middleware.WriteError(w, http.StatusNotFound, codeDocumentNotFound, "No document for this user")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Merge overwrites the given fields and keeps the rest.
func (h *DocumentHandler) Merge(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.docs.Merge)
}

// Replace swaps the whole document for the given fields.
func (h *DocumentHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.docs.Replace)
}

type writeFunc func(ctx context.Context, key string, fields docstore.Document) error

func (h *DocumentHandler) write(w http.ResponseWriter, r *http.Request, fn writeFunc) {
	uid, ok := h.ownUID(w, r)
	if !ok {
		return
	}

	var fields docstore.Document
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		middleware.WriteError(w, http.StatusBadRequest, codeInvalidDocument, "Document must be a JSON object")
		return
	}

	if err := fn(r.Context(), uid, fields); err != nil {
		if errors.Is(err, docstore.ErrInvalidValue) {
			middleware.WriteError(w, http.StatusBadRequest, codeInvalidDocument, "Field values must be valid JSON")
			return
		}
		h.logger.Error("write document", "uid", uid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
