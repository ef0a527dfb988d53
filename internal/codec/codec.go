// Package codec converts the in-memory cart model to and from its wire
// form, the JSON shape persisted in the cloud document and in local
// storage. Timestamps travel as RFC 3339 strings in UTC with nanosecond
// precision.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/quickcart/internal/model"
)

// TimeLayout is the ISO-8601 layout used for every timestamp on the wire.
const TimeLayout = time.RFC3339Nano

type WireItem struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Checked      bool    `json:"checked"`
	LastBought   *string `json:"lastBought"`
	SourceListID *int64  `json:"sourceListId,omitempty"`
}

type WireList struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	LastEdited  string     `json:"lastEdited"`
	Items       []WireItem `json:"items"`
	IsToBuyList bool       `json:"isToBuyList,omitempty"`
}

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire timestamp. Any RFC 3339 string is accepted,
// including the millisecond form browsers produce.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Serialize mirrors the collection into its wire form.
func Serialize(c model.Collection) []WireList {
	out := make([]WireList, 0, len(c))
	for _, l := range c {
		wl := WireList{
			ID:          l.ID,
			Name:        l.Name,
			LastEdited:  FormatTime(l.LastEdited),
			Items:       make([]WireItem, 0, len(l.Items)),
			IsToBuyList: l.IsToBuyList,
		}
		for _, item := range l.Items {
			wi := WireItem{
				ID:      item.ID,
				Name:    item.Name,
				Checked: item.Checked,
			}
			if item.LastBought != nil {
				s := FormatTime(*item.LastBought)
				wi.LastBought = &s
			}
			if item.SourceListID != nil {
				id := *item.SourceListID
				wi.SourceListID = &id
			}
			wl.Items = append(wl.Items, wi)
		}
		out = append(out, wl)
	}
	return out
}

// Deserialize parses the wire form back into a collection. A null or absent
// lastBought stays nil; a malformed timestamp is an error.
func Deserialize(lists []WireList) (model.Collection, error) {
	out := make(model.Collection, 0, len(lists))
	for _, wl := range lists {
		edited, err := ParseTime(wl.LastEdited)
		if err != nil {
			return nil, fmt.Errorf("list %d: lastEdited: %w", wl.ID, err)
		}
		l := model.CartList{
			ID:          wl.ID,
			Name:        wl.Name,
			LastEdited:  edited,
			Items:       make([]model.CartItem, 0, len(wl.Items)),
			IsToBuyList: wl.IsToBuyList,
		}
		for _, wi := range wl.Items {
			item := model.CartItem{
				ID:      wi.ID,
				Name:    wi.Name,
				Checked: wi.Checked,
			}
			if wi.LastBought != nil && *wi.LastBought != "" {
				t, err := ParseTime(*wi.LastBought)
				if err != nil {
					return nil, fmt.Errorf("list %d item %d: lastBought: %w", wl.ID, wi.ID, err)
				}
				item.LastBought = &t
			}
			if wi.SourceListID != nil {
				id := *wi.SourceListID
				item.SourceListID = &id
			}
			l.Items = append(l.Items, item)
		}
		out = append(out, l)
	}
	return out, nil
}

// Marshal encodes the collection as the JSON string kept in local storage.
func Marshal(c model.Collection) ([]byte, error) {
	data, err := json.Marshal(Serialize(c))
	if err != nil {
		return nil, fmt.Errorf("marshal lists: %w", err)
	}
	return data, nil
}

// Unmarshal decodes the local storage form produced by Marshal.
func Unmarshal(data []byte) (model.Collection, error) {
	var lists []WireList
	if err := json.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("unmarshal lists: %w", err)
	}
	return Deserialize(lists)
}
