package huggingface

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukanov/research-monitor/internal/domain"
)

func trendingServer(t *testing.T) *httptest.Server {
	t.Helper()

	recent := time.Now().UTC().AddDate(0, 0, -2).Format(time.RFC3339)
	stale := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		if tag := r.URL.Query().Get("pipeline_tag"); tag != "text-to-speech" {
			t.Errorf("unexpected pipeline tag: %q", tag)
		}
		fmt.Fprint(w, `[
			{"id": "acme/low-score", "trendingScore": 2},
			{"id": "acme/top-model", "trendingScore": 90},
			{"id": "acme/stale-model", "trendingScore": 50}
		]`)
	})
	mux.HandleFunc("/api/models/acme/top-model", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"lastModified": %q, "likes": 12, "downloads": 3400}`, recent)
	})
	mux.HandleFunc("/api/models/acme/stale-model", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"lastModified": %q, "likes": 99, "downloads": 100}`, stale)
	})
	mux.HandleFunc("/api/models/acme/low-score", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"lastModified": %q, "likes": 1, "downloads": 10}`, recent)
	})
	mux.HandleFunc("/acme/top-model/raw/main/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# Top Model\nFast speech synthesis.")
	})
	mux.HandleFunc("/acme/low-score/raw/main/README.md", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestTrendingFetchItems(t *testing.T) {
	t.Parallel()

	server := trendingServer(t)
	src := NewTrending(TrendingOptions{
		Client:     server.Client(),
		BaseURL:    server.URL,
		MaxDaysOld: 14,
		Logger:     quietLogger(),
	})

	items, err := src.FetchItems(context.Background(), time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("FetchItems: %v", err)
	}

	// stale-model is older than the freshness window and low-score has no
	// model card, so only top-model survives.
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.Type != domain.TypeModelCard {
		t.Fatalf("unexpected type: %s", item.Type)
	}
	if item.Title != "acme/top-model" {
		t.Fatalf("unexpected title: %s", item.Title)
	}
	if item.URL != server.URL+"/acme/top-model" {
		t.Fatalf("unexpected url: %s", item.URL)
	}
	if !strings.Contains(item.Content, "Fast speech synthesis.") {
		t.Fatalf("unexpected content: %s", item.Content)
	}
	if item.Metadata["likes"] != "12" || item.Metadata["downloads"] != "3400" {
		t.Fatalf("unexpected metadata: %v", item.Metadata)
	}
	if item.Metadata["trending_score"] != "90" {
		t.Fatalf("unexpected trending score: %s", item.Metadata["trending_score"])
	}
}

func TestTrendingListFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewTrending(TrendingOptions{
		Client:  server.Client(),
		BaseURL: server.URL,
		Logger:  quietLogger(),
	})

	if _, err := src.FetchItems(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when model listing fails")
	}
}
