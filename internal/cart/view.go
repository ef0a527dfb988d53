package cart

import (
	"sort"
	"strings"

	"github.com/dukerupert/quickcart/internal/model"
)

// ItemPlaceholder is shown in place of an item that has no name yet.
const ItemPlaceholder = "New item"

// DisplayName returns the name a view should render for the item.
func DisplayName(item model.CartItem) string {
	if strings.TrimSpace(item.Name) == "" {
		return ItemPlaceholder
	}
	return item.Name
}

// Sorted returns the lists in display order: the To Buy list pinned first,
// then user lists by most recently edited.
func (s *Store) Sorted() model.Collection {
	lists := s.Lists()
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].IsToBuyList != lists[j].IsToBuyList {
			return lists[i].IsToBuyList
		}
		return lists[i].LastEdited.After(lists[j].LastEdited)
	})
	return lists
}

// Partition splits a list's items into those still to buy and those
// already checked off, preserving insertion order within each.
func Partition(l model.CartList) (toBuy, completed []model.CartItem) {
	for _, item := range l.Items {
		if item.Checked {
			completed = append(completed, item)
		} else {
			toBuy = append(toBuy, item)
		}
	}
	return toBuy, completed
}

type SearchResult struct {
	ListID   int64          `json:"list_id"`
	ListName string         `json:"list_name"`
	Item     model.CartItem `json:"item"`
}

// Search matches item names case-insensitively across every list.
func (s *Store) Search(query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var results []SearchResult
	for _, l := range s.Sorted() {
		for _, item := range l.Items {
			if strings.Contains(strings.ToLower(item.Name), q) {
				results = append(results, SearchResult{ListID: l.ID, ListName: l.Name, Item: item})
			}
		}
	}
	return results
}
