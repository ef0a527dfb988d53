package tui

import (
	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/syncer"
)

// storeChangedMsg and statusChangedMsg arrive from subscriptions. Handlers
// re-read the store and controller rather than trusting the payload, so a
// dropped message only delays a redraw.
type storeChangedMsg struct {
	change cart.Change
}

type statusChangedMsg struct {
	status syncer.Status
}

type authResultMsg struct {
	err error
}

type localResultMsg struct {
	err error
}

type signedOutMsg struct {
	err error
}
