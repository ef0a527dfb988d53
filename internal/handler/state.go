package handler

import (
	"net/http"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/codec"
	"github.com/dukerupert/quickcart/internal/syncer"
)

type StateHandler struct {
	store   *cart.Store
	session Session
}

func NewStateHandler(store *cart.Store, session Session) *StateHandler {
	return &StateHandler{store: store, session: session}
}

type editingState struct {
	ListID int64 `json:"list_id"`
	ItemID int64 `json:"item_id"`
}

type stateResponse struct {
	Lists        []codec.WireList `json:"lists"`
	ActiveListID int64            `json:"active_list_id"`
	Editing      *editingState    `json:"editing"`
	Sync         syncer.Status    `json:"sync"`
}

// Get returns everything a view needs to render: lists in display order,
// the selected list, the item being named and the sync status.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Lists:        codec.Serialize(h.store.Sorted()),
		ActiveListID: h.store.ActiveListID(),
		Sync:         h.session.Status(),
	}
	if listID, itemID, ok := h.store.Editing(); ok {
		resp.Editing = &editingState{ListID: listID, ItemID: itemID}
	}
	writeJSON(w, http.StatusOK, resp)
}
