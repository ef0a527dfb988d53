package cart

import (
	"sync"
	"time"

	"github.com/dukerupert/quickcart/internal/model"
)

// IDGenerator hands out millisecond-clock ids that never repeat within a
// process, even when several are requested in the same millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe raises the floor above every id in the collection, so ids handed
// out after a load cannot collide with loaded lists or items.
func (g *IDGenerator) Observe(lists []model.CartList) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range lists {
		if l.ID > g.last {
			g.last = l.ID
		}
		for _, item := range l.Items {
			if item.ID > g.last {
				g.last = item.ID
			}
		}
	}
}
