package engine

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxPageBytes        = 2 << 20
	maxPageChars        = 8000
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)

// ExtractURLs returns up to limit distinct http(s) URLs found in text
func ExtractURLs(text string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?)]}")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Page is the readable text of a fetched URL
type Page struct {
	URL   string
	Title string
	Text  string
}

// Block renders the page as a context block for the model
func (p Page) Block() string {
	title := p.Title
	if title == "" {
		title = p.URL
	}
	return fmt.Sprintf("<webpage url=%q title=%q>\n%s\n</webpage>", p.URL, title, p.Text)
}

// Fetcher downloads pages and reduces them to plain text
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "chatdesk/1.0")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	page := Page{URL: url}
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		page.Title, page.Text, err = htmlText(body)
		if err != nil {
			return Page{}, fmt.Errorf("failed to parse %s: %w", url, err)
		}
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/json":
		data, err := io.ReadAll(body)
		if err != nil {
			return Page{}, fmt.Errorf("failed to read %s: %w", url, err)
		}
		page.Text = string(data)
	default:
		return Page{}, fmt.Errorf("unsupported content type %q", mediaType)
	}

	page.Text = truncate(collapseSpace(page.Text), maxPageChars)
	return page, nil
}

var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Pre: true, atom.Blockquote: true,
}

// htmlText walks the document and keeps visible text
func htmlText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var title string
	findTitle(doc, &title)

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if hiddenElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				sb.WriteByte('\n')
			}
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, sb.String(), nil
}

func findTitle(n *html.Node, title *string) {
	if *title != "" {
		return
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
		*title = strings.TrimSpace(n.FirstChild.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		findTitle(c, title)
	}
}

// collapseSpace squeezes runs of blanks and drops empty lines
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
