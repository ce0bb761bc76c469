package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"golang.org/x/net/html"
)

const defaultItemClass = "listing-item"

// ListingAgent scrapes an HTML index page (press releases, report listings).
// Each element carrying the item class becomes one event: its first link is
// the source URL, the link text the title, a <time> element or an element
// with class "date" the published date, and the first paragraph the excerpt.
type ListingAgent struct {
	Base
	fetcher   *Fetcher
	robots    *RobotsChecker
	itemClass string
}

// NewListingAgent creates a listing agent from config
func NewListingAgent(cfg model.SourceConfig, env Env) (Agent, error) {
	base, err := NewBase(cfg, env)
	if err != nil {
		return nil, err
	}
	if env.Fetcher == nil {
		return nil, fmt.Errorf("source %s: no fetcher configured", cfg.Name)
	}
	itemClass := cfg.ItemClass
	if itemClass == "" {
		itemClass = defaultItemClass
	}
	return &ListingAgent{Base: base, fetcher: env.Fetcher, robots: env.Robots, itemClass: itemClass}, nil
}

func (a *ListingAgent) FetchNew(ctx context.Context, since *time.Time) ([]model.RawEvent, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return filterSince(events, a.window(since)), nil
}

func (a *ListingAgent) Backfill(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return filterRange(events, start, end), nil
}

func (a *ListingAgent) fetch(ctx context.Context) ([]model.RawEvent, error) {
	if a.robots != nil {
		allowed, _, err := a.robots.CanFetch(ctx, a.dependency, a.url)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", a.url)
		}
	}

	result, err := a.fetcher.Fetch(ctx, a.dependency, a.url)
	if err != nil {
		return nil, err
	}

	pageURL := result.FinalURL
	if pageURL == "" {
		pageURL = a.url
	}
	events, err := ParseListing(result.Body, pageURL, a.itemClass)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", a.url, err)
	}
	a.stamp(events)
	a.log.WithField("items", len(events)).Debug("listing fetched")
	return events, nil
}

// ParseListing extracts one raw event per element with itemClass
func ParseListing(body []byte, pageURL, itemClass string) ([]model.RawEvent, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	items := findAll(doc, func(n *html.Node) bool { return hasClass(n, itemClass) })
	events := make([]model.RawEvent, 0, len(items))
	seen := make(map[string]bool)

	for _, item := range items {
		link := findFirst(item, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "a" && attr(n, "href") != ""
		})
		if link == nil {
			continue
		}
		href, err := base.Parse(attr(link, "href"))
		if err != nil {
			continue
		}
		sourceURL := href.String()
		title := strings.Join(strings.Fields(nodeText(link)), " ")
		if title == "" || seen[sourceURL] {
			continue
		}
		seen[sourceURL] = true

		ev := model.RawEvent{
			SourceURL: sourceURL,
			Title:     title,
			Meta: model.SourceMeta{
				Jurisdiction: attr(item, "data-jurisdiction"),
				ReportNumber: attr(item, "data-report-number"),
				BillNumber:   attr(item, "data-bill-number"),
				CaseNumber:   attr(item, "data-case-number"),
			},
		}

		if t := findFirst(item, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "time"
		}); t != nil {
			ev.Meta.Published = attr(t, "datetime")
			if ev.Meta.Published == "" {
				ev.Meta.Published = strings.TrimSpace(nodeText(t))
			}
		} else if d := findFirst(item, func(n *html.Node) bool { return hasClass(n, "date") }); d != nil {
			ev.Meta.Published = strings.TrimSpace(nodeText(d))
		}

		if p := findFirst(item, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "p"
		}); p != nil {
			ev.Excerpt = strings.Join(strings.Fields(nodeText(p)), " ")
		}
		ev.Content = strings.Join(strings.Fields(nodeText(item)), " ")

		events = append(events, ev)
	}
	return events, nil
}

// nodeText extracts text content from a node
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}

	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(nodeText(c))
		buf.WriteString(" ")
	}
	return strings.TrimSpace(buf.String())
}

func hasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		if class == className {
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

func findAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
			return // items do not nest
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

func findFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}
