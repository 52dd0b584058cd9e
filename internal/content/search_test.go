package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestSearcher(t *testing.T, handler http.HandlerFunc) (*HTTPSearcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewHTTPSearcher(Config{
		BaseURL:       srv.URL,
		TrustedDomain: "eveappeal.org.uk",
		HTTPClient:    srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewHTTPSearcher: %v", err)
	}
	return s, srv
}

func TestSearchFiltersUntrustedSources(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "ovarian cancer symptoms" {
			t.Errorf("query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"Ovarian cancer signs","summary":"...","source_url":"https://eveappeal.org.uk/gynae-cancers/ovarian","score":0.91},
			{"title":"Subdomain guide","summary":"...","source_url":"https://ask.eveappeal.org.uk/guide","score":0.84},
			{"title":"Random blog","summary":"...","source_url":"https://health-blog.example.com/ovarian","score":0.97},
			{"title":"Plain http","summary":"...","source_url":"http://eveappeal.org.uk/page","score":0.80}
		]}`))
	})

	articles, err := s.Search(context.Background(), "ovarian cancer symptoms", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("articles = %d, want 2 trusted results", len(articles))
	}
	if articles[0].Title != "Ovarian cancer signs" {
		t.Errorf("first article = %q", articles[0].Title)
	}
}

func TestSearchServerError(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := s.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestTrustedSource(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {})

	cases := []struct {
		url  string
		want bool
	}{
		{"https://eveappeal.org.uk/page", true},
		{"https://ask.eveappeal.org.uk/page", true},
		{"https://EVEAPPEAL.org.uk/page", true},
		{"http://eveappeal.org.uk/page", false},
		{"https://eveappeal.org.uk.evil.com/page", false},
		{"https://noteveappeal.org.uk/page", false},
		{"not a url at all ://", false},
	}
	for _, tc := range cases {
		if got := s.TrustedSource(tc.url); got != tc.want {
			t.Errorf("TrustedSource(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestNewHTTPSearcherValidation(t *testing.T) {
	if _, err := NewHTTPSearcher(Config{TrustedDomain: "eveappeal.org.uk"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewHTTPSearcher(Config{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error for missing trusted domain")
	}
}
