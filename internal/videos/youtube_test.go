package videos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const searchJSON = `{
  "items": [
    {"id": {"kind": "youtube#video", "videoId": "abc123"},
     "snippet": {"title": "Pikachu best moments", "thumbnails": {"default": {"url": "https://i.ytimg.com/abc123.jpg"}}}},
    {"id": {"kind": "youtube#video", "videoId": "def456"},
     "snippet": {"title": "Pikachu vs Raichu", "thumbnails": {"default": {"url": "https://i.ytimg.com/def456.jpg"}}}}
  ]
}`

func TestHighlights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if q.Get("q") != "pikachu pokemon highlights" || q.Get("key") != "k" || q.Get("maxResults") != "6" || q.Get("type") != "video" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		w.Write([]byte(searchJSON))
	}))
	defer srv.Close()

	videos, err := NewClient(srv.URL+"/", "k", time.Second).Highlights(context.Background(), "pikachu")
	if err != nil {
		t.Fatalf("Highlights failed: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos", len(videos))
	}
	if videos[0] != (Video{ID: "abc123", Title: "Pikachu best moments", Thumbnail: "https://i.ytimg.com/abc123.jpg"}) {
		t.Errorf("first video = %+v", videos[0])
	}
}

func TestHighlightsErrors(t *testing.T) {
	if _, err := NewClient("http://unused", "", time.Second).Highlights(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("no key: got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusForbidden)
	}))
	defer srv.Close()
	if _, err := NewClient(srv.URL, "k", time.Second).Highlights(context.Background(), "x"); err == nil {
		t.Error("expected error for upstream 403")
	}
}
