package cart

import (
	"testing"

	"github.com/dukerupert/quickcart/internal/model"
)

func addNamed(t *testing.T, s *Store, listID int64, name string) int64 {
	t.Helper()
	id, ok := s.AddItem(listID)
	if !ok {
		t.Fatalf("add item to %d", listID)
	}
	s.RenameItem(listID, id, name)
	return id
}

func toBuyNames(t *testing.T, s *Store) []string {
	t.Helper()
	l, ok := s.List(model.ToBuyListID)
	if !ok {
		return nil
	}
	names := make([]string, len(l.Items))
	for i, item := range l.Items {
		names[i] = item.Name
	}
	return names
}

func TestAggregateScenarioProduceAndMilk(t *testing.T) {
	s := newTestStore(t)

	produce := s.CreateList("Produce")
	apples := addNamed(t, s, produce, "Apples")
	s.ToggleItem(produce, apples)

	l := mustList(t, s, produce)
	if l.Items[0].LastBought == nil {
		t.Fatal("lastBought should be populated")
	}
	_, completed := Partition(l)
	if len(completed) != 1 || completed[0].Name != "Apples" {
		t.Errorf("completed = %+v, want Apples", completed)
	}

	dairy := s.CreateList("Dairy")
	addNamed(t, s, dairy, "Milk")

	added, created := s.AddUncheckedToAggregate(dairy)
	if !created || added != 1 {
		t.Errorf("added, created = %d, %v, want 1, true", added, created)
	}

	toBuy := mustList(t, s, model.ToBuyListID)
	if !toBuy.IsToBuyList {
		t.Error("aggregator should be flagged isToBuyList")
	}
	if toBuy.Name != model.ToBuyListName {
		t.Errorf("name = %q, want %q", toBuy.Name, model.ToBuyListName)
	}
	if len(toBuy.Items) != 1 || toBuy.Items[0].Name != "Milk" {
		t.Fatalf("to buy = %+v, want only Milk", toBuy.Items)
	}
	item := toBuy.Items[0]
	if item.Checked {
		t.Error("aggregated item should be unchecked")
	}
	if item.SourceListID == nil || *item.SourceListID != dairy {
		t.Errorf("sourceListId = %v, want %d", item.SourceListID, dairy)
	}
	source := mustList(t, s, dairy)
	if item.ID == source.Items[0].ID {
		t.Error("aggregated item should get a fresh id")
	}
}

func TestAggregateDedupAcrossLists(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateList("Weekly")
	addNamed(t, s, a, "Eggs")
	b := s.CreateList("Party")
	addNamed(t, s, b, "eggs")

	s.AddUncheckedToAggregate(a)
	added, created := s.AddUncheckedToAggregate(b)
	if added != 0 || created {
		t.Errorf("added, created = %d, %v, want 0, false", added, created)
	}

	names := toBuyNames(t, s)
	if len(names) != 1 || names[0] != "Eggs" {
		t.Fatalf("to buy = %v, want [Eggs]", names)
	}
	item := mustList(t, s, model.ToBuyListID).Items[0]
	if *item.SourceListID != a {
		t.Errorf("sourceListId = %d, want first list %d", *item.SourceListID, a)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	addNamed(t, s, src, "Bread")
	addNamed(t, s, src, "Butter")

	s.AddUncheckedToAggregate(src)
	before := mustList(t, s, model.ToBuyListID)

	added, _ := s.AddUncheckedToAggregate(src)
	if added != 0 {
		t.Errorf("second run added %d, want 0", added)
	}
	after := mustList(t, s, model.ToBuyListID)
	if len(after.Items) != 2 {
		t.Errorf("to buy = %d items, want 2", len(after.Items))
	}
	if !after.LastEdited.Equal(before.LastEdited) {
		t.Error("a run that appends nothing should not touch lastEdited")
	}
}

func TestAggregateMergesNewNames(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	addNamed(t, s, src, "Bread")
	s.AddUncheckedToAggregate(src)

	addNamed(t, s, src, "Jam")
	added, created := s.AddUncheckedToAggregate(src)
	if added != 1 || created {
		t.Errorf("added, created = %d, %v, want 1, false", added, created)
	}
	names := toBuyNames(t, s)
	if len(names) != 2 || names[0] != "Bread" || names[1] != "Jam" {
		t.Errorf("to buy = %v, want [Bread Jam]", names)
	}
}

func TestAggregateSkipsBlankAndChecked(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	s.AddItem(src)
	addNamed(t, s, src, "   ")
	done := addNamed(t, s, src, "Coffee")
	s.ToggleItem(src, done)

	added, created := s.AddUncheckedToAggregate(src)
	if added != 0 || created {
		t.Errorf("added, created = %d, %v, want 0, false", added, created)
	}
	if _, ok := s.List(model.ToBuyListID); ok {
		t.Error("aggregator should not be created without qualifying items")
	}
}

func TestAggregateDedupWithinBatch(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	addNamed(t, s, src, "Milk")
	addNamed(t, s, src, "MILK ")

	added, _ := s.AddUncheckedToAggregate(src)
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
}

func TestAggregateFromToBuyIsNoOp(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	addNamed(t, s, src, "Milk")
	s.AddUncheckedToAggregate(src)

	added, created := s.AddUncheckedToAggregate(model.ToBuyListID)
	if added != 0 || created {
		t.Errorf("added, created = %d, %v, want 0, false", added, created)
	}
	if got := len(toBuyNames(t, s)); got != 1 {
		t.Errorf("to buy = %d items, want 1", got)
	}
}

func TestAggregateUnknownSource(t *testing.T) {
	s := newTestStore(t)
	added, created := s.AddUncheckedToAggregate(42)
	if added != 0 || created {
		t.Errorf("added, created = %d, %v, want 0, false", added, created)
	}
}

func TestAggregatorIsDeletable(t *testing.T) {
	s := newTestStore(t)
	src := s.CreateList("Weekly")
	addNamed(t, s, src, "Milk")
	s.AddUncheckedToAggregate(src)

	s.DeleteList(model.ToBuyListID)
	if _, ok := s.List(model.ToBuyListID); ok {
		t.Fatal("aggregator should be deleted")
	}

	_, created := s.AddUncheckedToAggregate(src)
	if !created {
		t.Error("aggregator should be recreated after deletion")
	}
}
