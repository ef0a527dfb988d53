// Package cart holds the authoritative in-memory collection of shopping
// lists. All mutation goes through Store; readers get deep copies.
package cart

import (
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/quickcart/internal/model"
)

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ListCreated  ChangeKind = "list_created"
	ListRenamed  ChangeKind = "list_renamed"
	ListDeleted  ChangeKind = "list_deleted"
	ItemAdded    ChangeKind = "item_added"
	ItemRenamed  ChangeKind = "item_renamed"
	ItemToggled  ChangeKind = "item_toggled"
	ItemDeleted  ChangeKind = "item_deleted"
	ItemsCleared ChangeKind = "items_cleared"
	ToBuyMerged  ChangeKind = "to_buy_merged"

	// Hydrated and Cleared replace the whole collection. They are not
	// user edits and must not be written back by the sync layer.
	Hydrated ChangeKind = "hydrated"
	Cleared  ChangeKind = "cleared"
)

// Change describes one applied mutation.
type Change struct {
	Kind   ChangeKind
	ListID int64
	ItemID int64
}

// UserEdit reports whether the change came from a user action.
func (c Change) UserEdit() bool {
	return c.Kind != Hydrated && c.Kind != Cleared
}

// Store is safe for concurrent use. Subscribers are called synchronously,
// in mutation order, after the store lock has been released. A subscriber
// must not mutate the Store from inside its callback.
type Store struct {
	mu      sync.Mutex
	lists   []model.CartList
	active  int64
	editing editState

	now   func() time.Time
	ids   *IDGenerator
	subMu sync.Mutex
	subs  map[int]func(Change)
	next  int
	// notifyMu keeps notifications in the order mutations were applied.
	notifyMu sync.Mutex
}

type editState struct {
	listID int64
	itemID int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lastEdited and lastBought.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(g *IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:  func() time.Time { return time.Now().UTC() },
		subs: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewIDGenerator(s.now)
	}
	return s
}

// Subscribe registers fn for every applied change and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// apply runs fn under the store lock and, when it reports a change,
// notifies subscribers once the lock is released.
func (s *Store) apply(fn func() (Change, bool)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	c, changed := fn()
	s.mu.Unlock()

	if !changed {
		return
	}

	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

func (s *Store) indexOfList(listID int64) int {
	for i := range s.lists {
		if s.lists[i].ID == listID {
			return i
		}
	}
	return -1
}

func indexOfItem(l *model.CartList, itemID int64) int {
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (s *Store) touch(l *model.CartList) {
	l.LastEdited = s.now()
}

// CreateList appends a new empty list, makes it active and returns its id.
// A blank name falls back to the default placeholder.
func (s *Store) CreateList(name string) int64 {
	var id int64
	s.apply(func() (Change, bool) {
		id = s.ids.Next()
		s.lists = append(s.lists, model.CartList{
			ID:         id,
			Name:       listName(name),
			LastEdited: s.now(),
			Items:      []model.CartItem{},
		})
		s.active = id
		return Change{Kind: ListCreated, ListID: id}, true
	})
	return id
}

// RenameList trims rawName; an empty result becomes the placeholder.
func (s *Store) RenameList(listID int64, rawName string) {
	s.apply(func() (Change, bool) {
		i := s.indexOfList(listID)
		if i < 0 {
			return Change{}, false
		}
		l := &s.lists[i]
		l.Name = listName(rawName)
		s.touch(l)
		return Change{Kind: ListRenamed, ListID: listID}, true
	})
}

// DeleteList removes the list. Callers are expected to have confirmed
// the deletion with the user.
func (s *Store) DeleteList(listID int64) {
	s.apply(func() (Change, bool) {
		i := s.indexOfList(listID)
		if i < 0 {
			return Change{}, false
		}
		s.lists = append(s.lists[:i], s.lists[i+1:]...)
		if s.active == listID {
			s.active = 0
		}
		if s.editing.listID == listID {
			s.editing = editState{}
		}
		return Change{Kind: ListDeleted, ListID: listID}, true
	})
}

// AddItem appends an unnamed, unchecked item and enters the editing state
// for it. It reports false when the list does not exist.
func (s *Store) AddItem(listID int64) (int64, bool) {
	var id int64
	var ok bool
	s.apply(func() (Change, bool) {
		i := s.indexOfList(listID)
		if i < 0 {
			return Change{}, false
		}
		l := &s.lists[i]
		id = s.ids.Next()
		l.Items = append(l.Items, model.CartItem{ID: id})
		s.touch(l)
		s.editing = editState{listID: listID, itemID: id}
		ok = true
		return Change{Kind: ItemAdded, ListID: listID, ItemID: id}, true
	})
	return id, ok
}

// RenameItem stores rawName verbatim. Empty names are legal here; views
// substitute a placeholder when rendering.
func (s *Store) RenameItem(listID, itemID int64, rawName string) {
	s.apply(func() (Change, bool) {
		l, j := s.findItem(listID, itemID)
		if l == nil {
			return Change{}, false
		}
		l.Items[j].Name = rawName
		s.touch(l)
		return Change{Kind: ItemRenamed, ListID: listID, ItemID: itemID}, true
	})
}

// ToggleItem flips checked. Checking stamps lastBought; unchecking keeps it.
func (s *Store) ToggleItem(listID, itemID int64) {
	s.apply(func() (Change, bool) {
		l, j := s.findItem(listID, itemID)
		if l == nil {
			return Change{}, false
		}
		item := &l.Items[j]
		item.Checked = !item.Checked
		if item.Checked {
			t := s.now()
			item.LastBought = &t
		}
		s.touch(l)
		return Change{Kind: ItemToggled, ListID: listID, ItemID: itemID}, true
	})
}

// DeleteItem removes the item from its list.
func (s *Store) DeleteItem(listID, itemID int64) {
	s.apply(func() (Change, bool) {
		l, j := s.findItem(listID, itemID)
		if l == nil {
			return Change{}, false
		}
		l.Items = append(l.Items[:j], l.Items[j+1:]...)
		s.touch(l)
		if s.editing.itemID == itemID && s.editing.listID == listID {
			s.editing = editState{}
		}
		return Change{Kind: ItemDeleted, ListID: listID, ItemID: itemID}, true
	})
}

// ClearChecked deletes every checked item of the list and returns how many
// were removed.
func (s *Store) ClearChecked(listID int64) int {
	var removed int
	s.apply(func() (Change, bool) {
		i := s.indexOfList(listID)
		if i < 0 {
			return Change{}, false
		}
		l := &s.lists[i]
		kept := l.Items[:0]
		for _, item := range l.Items {
			if item.Checked {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		if removed == 0 {
			return Change{}, false
		}
		l.Items = kept
		s.touch(l)
		return Change{Kind: ItemsCleared, ListID: listID}, true
	})
	return removed
}

func (s *Store) findItem(listID, itemID int64) (*model.CartList, int) {
	i := s.indexOfList(listID)
	if i < 0 {
		return nil, -1
	}
	l := &s.lists[i]
	j := indexOfItem(l, itemID)
	if j < 0 {
		return nil, -1
	}
	return l, j
}

// SetActiveList selects the list shown by views. Unknown ids are ignored.
func (s *Store) SetActiveList(listID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfList(listID) >= 0 {
		s.active = listID
	}
}

// ActiveListID returns the selected list id, or 0 when none is selected.
func (s *Store) ActiveListID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Editing returns the item currently being named, if any.
func (s *Store) Editing() (listID, itemID int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing.listID, s.editing.itemID, s.editing.itemID != 0
}

func (s *Store) StopEditing() {
	s.mu.Lock()
	s.editing = editState{}
	s.mu.Unlock()
}

// Lists returns a deep copy of the collection in insertion order.
func (s *Store) Lists() model.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Collection(s.lists).Clone()
}

// List returns a copy of one list.
func (s *Store) List(listID int64) (model.CartList, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOfList(listID)
	if i < 0 {
		return model.CartList{}, false
	}
	return s.lists[i].Clone(), true
}

// Replace swaps in a loaded collection. Only the first list carrying the
// reserved To Buy id survives.
func (s *Store) Replace(c model.Collection) {
	s.apply(func() (Change, bool) {
		s.lists = normalize(c.Clone())
		s.active = 0
		s.editing = editState{}
		s.ids.Observe(s.lists)
		return Change{Kind: Hydrated}, true
	})
}

// Clear empties the collection, as on sign-out.
func (s *Store) Clear() {
	s.apply(func() (Change, bool) {
		s.lists = nil
		s.active = 0
		s.editing = editState{}
		return Change{Kind: Cleared}, true
	})
}

func normalize(c model.Collection) []model.CartList {
	out := make([]model.CartList, 0, len(c))
	seenToBuy := false
	for _, l := range c {
		if l.ID == model.ToBuyListID {
			if seenToBuy {
				continue
			}
			seenToBuy = true
			l.IsToBuyList = true
		}
		if l.Items == nil {
			l.Items = []model.CartItem{}
		}
		out = append(out, l)
	}
	return out
}

func listName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return model.DefaultListName
	}
	return name
}
