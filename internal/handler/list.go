package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/codec"
	"github.com/dukerupert/quickcart/internal/model"
)

// ListHandler exposes the list and item operations of the store. Unknown
// list or item ids are no-ops answered with 204.
type ListHandler struct {
	store  *cart.Store
	logger *slog.Logger
}

func NewListHandler(store *cart.Store, logger *slog.Logger) *ListHandler {
	return &ListHandler{store: store, logger: logger}
}

func (h *ListHandler) writeList(w http.ResponseWriter, status int, listID int64) {
	l, ok := h.store.List(listID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, status, codec.Serialize([]model.CartList{l})[0])
}

func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	name, err := decodeName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id := h.store.CreateList(name)
	h.writeList(w, http.StatusCreated, id)
}

func (h *ListHandler) RenameList(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	name, err := decodeName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	h.store.RenameList(id, name)
	h.writeList(w, http.StatusOK, id)
}

func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	h.store.DeleteList(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	h.store.SetActiveList(id)
	w.WriteHeader(http.StatusNoContent)
}

// AddItem appends an unnamed item; the view then names it with RenameItem.
func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	itemID, ok := h.store.AddItem(listID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": itemID, "list_id": listID})
}

// RenameItem commits a name typed for an item and leaves editing mode.
func (h *ListHandler) RenameItem(w http.ResponseWriter, r *http.Request) {
	listID, itemID, ok := parseItemParams(w, r)
	if !ok {
		return
	}
	name, err := decodeName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	h.store.RenameItem(listID, itemID, name)
	if l, i, editing := h.store.Editing(); editing && l == listID && i == itemID {
		h.store.StopEditing()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	listID, itemID, ok := parseItemParams(w, r)
	if !ok {
		return
	}
	h.store.ToggleItem(listID, itemID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	listID, itemID, ok := parseItemParams(w, r)
	if !ok {
		return
	}
	h.store.DeleteItem(listID, itemID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) ClearChecked(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	removed := h.store.ClearChecked(id)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// AddToBuy copies the list's unchecked items into the To Buy list.
func (h *ListHandler) AddToBuy(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	added, created := h.store.AddUncheckedToAggregate(id)
	if added > 0 || created {
		h.logger.Debug("merged into to buy", "source_list_id", id, "added", added, "created", created)
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "created": created})
}

func (h *ListHandler) Search(w http.ResponseWriter, r *http.Request) {
	results := h.store.Search(r.URL.Query().Get("q"))
	if results == nil {
		results = []cart.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func parseItemParams(w http.ResponseWriter, r *http.Request) (listID, itemID int64, ok bool) {
	listID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, 0, false
	}
	itemID, err = parseIDParam(r, "item_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item_id")
		return 0, 0, false
	}
	return listID, itemID, true
}
