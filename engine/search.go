package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const maxSearchResponseBytes = 1 << 20

// Searcher queries a JSON search API shaped like DuckDuckGo's instant answers
type Searcher struct {
	endpoint string
	client   *http.Client
}

func NewSearcher(endpoint string, timeout time.Duration) *Searcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Searcher{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Search returns up to limit result URLs for query
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("search response is not valid JSON")
	}
	return resultURLs(gjson.ParseBytes(data), limit), nil
}

// resultURLs collects result links in rank order: direct results, the
// abstract source, then related topics (including grouped ones)
func resultURLs(doc gjson.Result, limit int) []string {
	seen := map[string]bool{}
	var out []string
	add := func(r gjson.Result) bool {
		u := r.String()
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
		return limit <= 0 || len(out) < limit
	}

	if !forEach(doc.Get("Results.#.FirstURL"), add) {
		return out
	}
	if !add(doc.Get("AbstractURL")) {
		return out
	}
	doc.Get("RelatedTopics").ForEach(func(_, topic gjson.Result) bool {
		if topic.Get("Topics").Exists() {
			return forEach(topic.Get("Topics.#.FirstURL"), add)
		}
		return add(topic.Get("FirstURL"))
	})
	return out
}

func forEach(list gjson.Result, fn func(gjson.Result) bool) bool {
	for _, r := range list.Array() {
		if !fn(r) {
			return false
		}
	}
	return true
}
