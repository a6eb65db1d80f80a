package websearch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/rag"
)

// DuckDuckGoEndpoint is the HTML-only search page. It needs no API key.
const DuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the DuckDuckGo HTML results page.
type DuckDuckGo struct {
	http     *tool.HTTPTool
	endpoint string
}

// NewDuckDuckGo creates a DuckDuckGo provider. An empty endpoint means
// DuckDuckGoEndpoint.
func NewDuckDuckGo(endpoint string, httpOpts ...tool.HTTPOption) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DuckDuckGoEndpoint
	}
	return &DuckDuckGo{http: tool.NewHTTPTool(httpOpts...), endpoint: endpoint}
}

// Name implements rag.WebSearcher.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements rag.WebSearcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]rag.WebResult, error) {
	body, err := d.http.PostForm(ctx, d.endpoint, url.Values{"q": {query}})
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	results, err := ParseDuckDuckGo(body, max)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo parse: %w", err)
	}
	return results, nil
}

// ParseDuckDuckGo extracts up to max organic results from a results page.
// Ads are skipped. max <= 0 means no limit.
func ParseDuckDuckGo(page []byte, max int) ([]rag.WebResult, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var results []rag.WebResult
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := parseResult(n); ok {
				results = append(results, r)
				if max > 0 && len(results) == max {
					return false
				}
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return results, nil
}

func parseResult(n *html.Node) (rag.WebResult, bool) {
	var r rag.WebResult
	if a := findByClass(n, "result__a"); a != nil {
		r.Title = textOf(a)
		r.URL = resolveLink(attr(a, "href"))
	}
	if s := findByClass(n, "result__snippet"); s != nil {
		r.Snippet = textOf(s)
	}
	return r, r.URL != "" && (r.Title != "" || r.Snippet != "")
}

// resolveLink unwraps DuckDuckGo redirect links to the target URL.
func resolveLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

func findByClass(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasClass(c, class) {
			return c
		}
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
