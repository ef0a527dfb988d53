package websocket

import (
	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/syncer"
)

// Entities carried by feed messages.
const (
	EntityList  = "list"
	EntityItem  = "item"
	EntityLists = "lists"
	EntitySync  = "sync"
)

// ChangeMessage translates a store change into a feed message.
func ChangeMessage(ch cart.Change) Message {
	switch ch.Kind {
	case cart.ListCreated:
		return NewMessage(EntityList, "created", ch.ListID, nil)
	case cart.ListRenamed:
		return NewMessage(EntityList, "renamed", ch.ListID, nil)
	case cart.ListDeleted:
		return NewMessage(EntityList, "deleted", ch.ListID, nil)
	case cart.ItemsCleared:
		return NewMessage(EntityList, "cleared_checked", ch.ListID, nil)
	case cart.ToBuyMerged:
		return NewMessage(EntityList, "to_buy_merged", ch.ListID, nil)
	case cart.ItemAdded:
		return NewMessage(EntityItem, "added", ch.ItemID, map[string]any{"list_id": ch.ListID})
	case cart.ItemRenamed:
		return NewMessage(EntityItem, "renamed", ch.ItemID, map[string]any{"list_id": ch.ListID})
	case cart.ItemToggled:
		return NewMessage(EntityItem, "toggled", ch.ItemID, map[string]any{"list_id": ch.ListID})
	case cart.ItemDeleted:
		return NewMessage(EntityItem, "deleted", ch.ItemID, map[string]any{"list_id": ch.ListID})
	case cart.Hydrated:
		return NewMessage(EntityLists, "loaded", 0, nil)
	case cart.Cleared:
		return NewMessage(EntityLists, "cleared", 0, nil)
	default:
		return NewMessage(EntityLists, string(ch.Kind), ch.ListID, nil)
	}
}

// StatusMessage reports a sync status change.
func StatusMessage(st syncer.Status) Message {
	extra := map[string]any{
		"mode":         st.Mode.String(),
		"loaded":       st.Loaded,
		"pending_save": st.PendingSave,
		"local_only":   st.LocalOnly,
	}
	if st.Identity != nil {
		extra["email"] = st.Identity.Email
	}
	if st.LastError != "" {
		extra["error"] = st.LastError
	}
	return NewMessage(EntitySync, st.State.String(), 0, extra)
}

// Relay publishes every store change and sync status update until the
// returned function is called. Views that connect are greeted with the
// current sync status.
func Relay(hub *Hub, store *cart.Store, ctrl *syncer.Controller) func() {
	hub.OnConnect(func() []Message {
		return []Message{StatusMessage(ctrl.Status())}
	})
	unsubStore := store.Subscribe(func(ch cart.Change) {
		hub.Publish(ChangeMessage(ch))
	})
	unsubStatus := ctrl.Subscribe(func(st syncer.Status) {
		hub.Publish(StatusMessage(st))
	})
	return func() {
		hub.OnConnect(nil)
		unsubStore()
		unsubStatus()
	}
}
