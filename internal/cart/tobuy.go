package cart

import (
	"strings"

	"github.com/dukerupert/quickcart/internal/model"
)

// AddUncheckedToAggregate copies the unchecked, named items of the source
// list into the To Buy list, creating it on first use. Items whose name
// already appears in To Buy (case-insensitive) are skipped, so repeated
// calls never duplicate entries; the first list to contribute a name keeps
// the attribution. It returns how many items were appended and whether the
// To Buy list was created.
func (s *Store) AddUncheckedToAggregate(sourceListID int64) (added int, created bool) {
	s.apply(func() (Change, bool) {
		if sourceListID == model.ToBuyListID {
			return Change{}, false
		}
		si := s.indexOfList(sourceListID)
		if si < 0 {
			return Change{}, false
		}

		var clones []model.CartItem
		for _, item := range s.lists[si].Items {
			if item.Checked || strings.TrimSpace(item.Name) == "" {
				continue
			}
			src := sourceListID
			clones = append(clones, model.CartItem{
				ID:           s.ids.Next(),
				Name:         item.Name,
				Checked:      false,
				SourceListID: &src,
			})
		}
		if len(clones) == 0 {
			return Change{}, false
		}

		ti := s.indexOfList(model.ToBuyListID)
		seen := make(map[string]bool)
		if ti >= 0 {
			for _, item := range s.lists[ti].Items {
				seen[nameKey(item.Name)] = true
			}
		}

		var fresh []model.CartItem
		for _, c := range clones {
			key := nameKey(c.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			fresh = append(fresh, c)
		}

		if ti < 0 {
			s.lists = append(s.lists, model.CartList{
				ID:          model.ToBuyListID,
				Name:        model.ToBuyListName,
				LastEdited:  s.now(),
				Items:       fresh,
				IsToBuyList: true,
			})
			added, created = len(fresh), true
			return Change{Kind: ToBuyMerged, ListID: model.ToBuyListID}, true
		}

		if len(fresh) == 0 {
			return Change{}, false
		}
		l := &s.lists[ti]
		l.Items = append(l.Items, fresh...)
		s.touch(l)
		added = len(fresh)
		return Change{Kind: ToBuyMerged, ListID: model.ToBuyListID}, true
	})
	return added, created
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
