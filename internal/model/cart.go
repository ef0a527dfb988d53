package model

import "time"

// ToBuyListID is the reserved id of the aggregated "To Buy" list.
const ToBuyListID int64 = -1

const (
	DefaultListName = "Untitled List"
	ToBuyListName   = "To Buy"
)

type CartItem struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Checked      bool       `json:"checked"`
	LastBought   *time.Time `json:"last_bought"`
	SourceListID *int64     `json:"source_list_id,omitempty"`
}

type CartList struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	LastEdited  time.Time  `json:"last_edited"`
	Items       []CartItem `json:"items"`
	IsToBuyList bool       `json:"is_to_buy_list"`
}

// Collection is the full set of lists owned by one user.
type Collection []CartList

// Clone returns a deep copy of the list.
func (l CartList) Clone() CartList {
	out := l
	out.Items = make([]CartItem, len(l.Items))
	for i, item := range l.Items {
		out.Items[i] = item.Clone()
	}
	return out
}

// Clone returns a copy of the item that shares no pointers with the original.
func (i CartItem) Clone() CartItem {
	out := i
	if i.LastBought != nil {
		t := *i.LastBought
		out.LastBought = &t
	}
	if i.SourceListID != nil {
		id := *i.SourceListID
		out.SourceListID = &id
	}
	return out
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, l := range c {
		out[i] = l.Clone()
	}
	return out
}
