// Package content retrieves health information from the trusted content
// service. Every answer must cite a source on the trusted domain; results
// from anywhere else are dropped before they reach the user.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// Article is one retrieved health information result.
type Article struct {
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	SourceURL string  `json:"source_url"`
	Score     float64 `json:"score"`
}

// Searcher finds trusted health information for a user query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Article, error)
}

// HTTPSearcher queries the content service over HTTP.
type HTTPSearcher struct {
	baseURL       string
	trustedDomain string
	httpClient    *http.Client
	logger        *logging.Logger
}

// Config controls the HTTP searcher.
type Config struct {
	BaseURL       string
	TrustedDomain string
	HTTPClient    *http.Client
	Logger        *logging.Logger
}

func NewHTTPSearcher(cfg Config) (*HTTPSearcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("content: base URL is required")
	}
	if strings.TrimSpace(cfg.TrustedDomain) == "" {
		return nil, fmt.Errorf("content: trusted domain is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPSearcher{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		trustedDomain: strings.ToLower(cfg.TrustedDomain),
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

var _ Searcher = (*HTTPSearcher)(nil)

// Search queries the content service and filters out any result whose
// source is not on the trusted domain.
func (s *HTTPSearcher) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 3
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&limit=%d", s.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("content: build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content: search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []Article `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("content: decode search response: %w", err)
	}

	trusted := make([]Article, 0, len(payload.Results))
	for _, article := range payload.Results {
		if !s.TrustedSource(article.SourceURL) {
			s.logger.Warn("dropped untrusted content result",
				"source_url", article.SourceURL,
				"trusted_domain", s.trustedDomain,
			)
			continue
		}
		trusted = append(trusted, article)
	}
	return trusted, nil
}

// EmptySearcher always returns no results. Used when no content service is
// configured.
type EmptySearcher struct{}

var _ Searcher = EmptySearcher{}

func (EmptySearcher) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	return nil, nil
}

// TrustedSource reports whether rawURL points at the trusted domain or one
// of its subdomains over HTTPS.
func (s *HTTPSearcher) TrustedSource(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == s.trustedDomain || strings.HasSuffix(host, "."+s.trustedDomain)
}
