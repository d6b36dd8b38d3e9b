package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gmaps-scraper/utils"
)

// fakePostcodesAPI serves the three endpoints the client touches.
func fakePostcodesAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/places", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.EqualFold(q, "liverpool") {
			fmt.Fprint(w, `{"result":[{"latitude":53.4084,"longitude":-2.9916}]}`)
			return
		}
		fmt.Fprint(w, `{"result":[]}`)
	})

	mux.HandleFunc("/outcodes", func(w http.ResponseWriter, r *http.Request) {
		// Duplicate L1 entries exercise dedup; L10 vs L2 exercises ordering.
		fmt.Fprint(w, `{"result":[
			{"outcode":"L10","admin_district":["Sefton"],"latitude":53.47,"longitude":-2.94},
			{"outcode":"L1","admin_district":["Liverpool"],"latitude":53.40,"longitude":-2.98},
			{"outcode":"L1","admin_district":["Liverpool"],"latitude":53.40,"longitude":-2.98},
			{"outcode":"L2","admin_district":["Liverpool"],"latitude":53.41,"longitude":-2.99}
		]}`)
	})

	mux.HandleFunc("/outcodes/", func(w http.ResponseWriter, r *http.Request) {
		oc := strings.TrimPrefix(r.URL.Path, "/outcodes/")
		if oc == "SW1A" {
			fmt.Fprint(w, `{"result":{"outcode":"SW1A","admin_district":["Westminster"],"latitude":51.5,"longitude":-0.14}}`)
			return
		}
		http.Error(w, `{"error":"Outcode not found"}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	srv := fakePostcodesAPI(t)
	return NewClient(srv.URL, utils.NewLogger(false))
}

func TestResolveDedupesAndSorts(t *testing.T) {
	c := newTestClient(t)

	outcodes, err := c.Resolve(context.Background(), "Liverpool")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var got []string
	for _, oc := range outcodes {
		got = append(got, oc.Outcode)
	}
	want := []string{"L1", "L2", "L10"}
	if len(got) != len(want) {
		t.Fatalf("outcodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outcodes = %v, want %v", got, want)
		}
	}
	if outcodes[0].AdminDistrict != "Liverpool" {
		t.Errorf("L1 admin district = %q, want Liverpool", outcodes[0].AdminDistrict)
	}
}

func TestResolveDirectOutcodeInput(t *testing.T) {
	c := newTestClient(t)

	outcodes, err := c.Resolve(context.Background(), "sw1a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	found := false
	for _, oc := range outcodes {
		if oc.Outcode == "SW1A" {
			found = true
		}
	}
	if !found {
		t.Errorf("direct outcode lookup missing SW1A: %v", outcodes)
	}
}

func TestResolveUnknownLocation(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Resolve(context.Background(), "Atlantis")
	if !errors.Is(err, ErrNoSuchLocation) {
		t.Errorf("got %v, want ErrNoSuchLocation", err)
	}
}

func TestResolveEmptyLocation(t *testing.T) {
	c := newTestClient(t)

	if _, err := c.Resolve(context.Background(), "   "); err == nil {
		t.Error("blank location accepted")
	}
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, utils.NewLogger(false))
	if _, err := c.Resolve(context.Background(), "Liverpool"); err == nil {
		t.Error("5xx place search did not surface an error")
	}
}

func TestSplitOutcode(t *testing.T) {
	tests := []struct {
		in    string
		alpha string
		num   int
	}{
		{"L1", "L", 1},
		{"L10", "L", 10},
		{"SW1A", "SWA", 1},
		{"EC2", "EC", 2},
	}
	for _, tt := range tests {
		alpha, num := splitOutcode(tt.in)
		if alpha != tt.alpha || num != tt.num {
			t.Errorf("splitOutcode(%q) = %q,%d; want %q,%d", tt.in, alpha, num, tt.alpha, tt.num)
		}
	}
}
