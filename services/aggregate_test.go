package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"gmaps-scraper/models"
)

func attrs(name, address string) models.Attributes {
	return models.Attributes{Name: name, Address: address}
}

func TestMergeNewAndDuplicate(t *testing.T) {
	store := NewAggregateStore(FillMissing)

	key := MakeKey("Boots", "1 Church St", "L1")
	_, isNew := store.Merge(key, attrs("Boots", "1 Church St"), "L1")
	if !isNew {
		t.Error("first merge should be new")
	}

	listing, isNew := store.Merge(key, attrs("Boots", "1 Church St"), "L2")
	if isNew {
		t.Error("second merge of same key should not be new")
	}
	if len(listing.Postcodes) != 2 || listing.Postcodes[0] != "L1" || listing.Postcodes[1] != "L2" {
		t.Errorf("postcode set = %v, want [L1 L2]", listing.Postcodes)
	}

	if store.Len() != 1 {
		t.Errorf("store has %d listings, want 1", store.Len())
	}
}

func TestMergeFillMissingNeverOverwrites(t *testing.T) {
	store := NewAggregateStore(FillMissing)
	key := MakeKey("Boots", "1 Church St", "L1")

	first := models.Attributes{Name: "Boots", Address: "1 Church St", Phone: "0151 111 1111"}
	second := models.Attributes{Name: "Boots", Address: "1 Church St", Phone: "0151 222 2222", Website: "https://boots.example"}

	store.Merge(key, first, "L1")
	listing, _ := store.Merge(key, second, "L2")

	if listing.Phone != "0151 111 1111" {
		t.Errorf("present phone was overwritten: %q", listing.Phone)
	}
	if listing.Website != "https://boots.example" {
		t.Errorf("missing website was not filled: %q", listing.Website)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := models.Attributes{Name: "Boots", Address: "1 Church St", Phone: "0151 111 1111"}
	b := models.Attributes{Name: "Boots", Address: "1 Church St", Website: "https://boots.example", Rating: 4.2}
	key := MakeKey("Boots", "1 Church St", "L1")

	s1 := NewAggregateStore(FillMissing)
	s1.Merge(key, a, "L1")
	ab, _ := s1.Merge(key, b, "L1")

	s2 := NewAggregateStore(FillMissing)
	s2.Merge(key, b, "L1")
	ba, _ := s2.Merge(key, a, "L1")

	if ab.Phone != ba.Phone || ab.Website != ba.Website || ab.Rating != ba.Rating {
		t.Errorf("merge is order-dependent: %+v vs %+v", ab, ba)
	}
}

func TestMostRecentWinsPolicy(t *testing.T) {
	store := NewAggregateStore(MostRecentWins)
	key := MakeKey("Boots", "1 Church St", "L1")

	store.Merge(key, models.Attributes{Name: "Boots", Phone: "old"}, "L1")
	listing, _ := store.Merge(key, models.Attributes{Name: "Boots", Phone: "new"}, "L1")

	if listing.Phone != "new" {
		t.Errorf("most-recent-wins kept %q", listing.Phone)
	}
}

func TestConcurrentMergesAtMostOneNew(t *testing.T) {
	store := NewAggregateStore(FillMissing)
	key := MakeKey("Boots", "1 Church St", "L1")

	var newCount int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, isNew := store.Merge(key, attrs("Boots", "1 Church St"), "L1"); isNew {
				atomic.AddInt64(&newCount, 1)
			}
		}()
	}
	wg.Wait()

	if newCount != 1 {
		t.Errorf("got %d isNew=true merges, want exactly 1", newCount)
	}
}

func TestBaselineNeverReportedNew(t *testing.T) {
	store := NewAggregateStore(FillMissing)

	baseline := []models.RawListing{
		{Name: "Boots", Address: "1 Church St", Postcode: "L1"},
	}
	if err := store.Seed(baseline); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if store.BaselineCount() != 1 {
		t.Fatalf("baseline count = %d, want 1", store.BaselineCount())
	}

	key := MakeKey("Boots", "1 Church St", "L1")
	listing, isNew := store.Merge(key, attrs("Boots", "1 Church St"), "L1")
	if isNew {
		t.Error("re-discovered baseline listing reported as new")
	}
	if !listing.FromBaseline {
		t.Error("listing lost its baseline provenance")
	}
	if store.NewCount() != 0 {
		t.Errorf("new count = %d, want 0", store.NewCount())
	}
}

func TestSeedRejectsNamelessRow(t *testing.T) {
	store := NewAggregateStore(FillMissing)
	err := store.Seed([]models.RawListing{{Address: "1 Church St"}})
	if err == nil {
		t.Fatal("expected error for baseline row without a name")
	}
}

func TestSnapshotOrderAndSummary(t *testing.T) {
	store := NewAggregateStore(FillMissing)

	store.Merge(MakeKey("A", "addr1", "L1"), models.Attributes{Name: "A", Address: "addr1", Phone: "1", Rating: 4}, "L1")
	store.Merge(MakeKey("B", "addr2", "L1"), models.Attributes{Name: "B", Address: "addr2"}, "L1")
	store.Merge(MakeKey("B", "addr2", "L2"), models.Attributes{Name: "B", Address: "addr2"}, "L2")
	store.Merge(MakeKey("C", "addr3", "L2"), models.Attributes{Name: "C", Address: "addr3", Rating: 3}, "L2")

	listings, summaries := store.Snapshot()

	if len(listings) != 3 {
		t.Fatalf("snapshot has %d listings, want 3", len(listings))
	}
	for i, want := range []string{"A", "B", "C"} {
		if listings[i].Name != want {
			t.Errorf("listings[%d] = %q, want %q (first-seen order)", i, listings[i].Name, want)
		}
		if listings[i].Seq != i {
			t.Errorf("listings[%d].Seq = %d, want %d", i, listings[i].Seq, i)
		}
	}

	if len(summaries) != 2 {
		t.Fatalf("got %d postcode summaries, want 2", len(summaries))
	}
	l1, l2 := summaries[0], summaries[1]
	if l1.Postcode != "L1" || l1.Found != 2 || l1.New != 2 || l1.WithPhone != 1 {
		t.Errorf("L1 summary = %+v", l1)
	}
	if l2.Postcode != "L2" || l2.Found != 2 || l2.New != 1 {
		t.Errorf("L2 summary = %+v", l2)
	}
	if l2.AvgRating != 3 {
		t.Errorf("L2 avg rating = %v, want 3", l2.AvgRating)
	}
}

func TestSnapshotDoesNotAliasStore(t *testing.T) {
	store := NewAggregateStore(FillMissing)
	key := MakeKey("A", "addr1", "L1")
	store.Merge(key, attrs("A", "addr1"), "L1")

	listings, _ := store.Snapshot()
	listings[0].Name = "mutated"
	listings[0].Postcodes = append(listings[0].Postcodes, "X9")

	again, _ := store.Snapshot()
	if again[0].Name != "A" || len(again[0].Postcodes) != 1 {
		t.Error("snapshot shares memory with the store")
	}
}
