// Package kiosk scrapes the operator's public kiosk page for the list
// of route codes currently published there. The page is plain server
// rendered HTML; each route is an anchor inside the route listing.
package kiosk

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Routes fetches the kiosk page and returns the unique route codes it
// lists, sorted.
func (c *Client) Routes(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("kiosk: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiosk: fetch %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kiosk: fetch %s: %s", c.url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kiosk: parse page: %w", err)
	}

	return scrapeRoutes(doc), nil
}

func scrapeRoutes(doc *goquery.Document) []string {
	seen := make(map[string]bool)

	doc.Find(".route-list a, a.route-link").Each(func(i int, sel *goquery.Selection) {
		code := strings.TrimSpace(sel.Text())
		if code != "" {
			seen[code] = true
		}
	})

	routes := make([]string, 0, len(seen))
	for code := range seen {
		routes = append(routes, code)
	}
	sort.Strings(routes)
	return routes
}
