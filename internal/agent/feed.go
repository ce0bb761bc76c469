package agent

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"golang.org/x/net/html"
)

// FeedAgent polls an RSS 2.0 or Atom feed. Feeds have no paged history, so
// Backfill filters whatever the feed currently carries.
type FeedAgent struct {
	Base
	fetcher *Fetcher
}

// NewFeedAgent creates a feed agent from config
func NewFeedAgent(cfg model.SourceConfig, env Env) (Agent, error) {
	base, err := NewBase(cfg, env)
	if err != nil {
		return nil, err
	}
	if env.Fetcher == nil {
		return nil, fmt.Errorf("source %s: no fetcher configured", cfg.Name)
	}
	return &FeedAgent{Base: base, fetcher: env.Fetcher}, nil
}

func (a *FeedAgent) FetchNew(ctx context.Context, since *time.Time) ([]model.RawEvent, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return filterSince(events, a.window(since)), nil
}

func (a *FeedAgent) Backfill(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return filterRange(events, start, end), nil
}

func (a *FeedAgent) fetch(ctx context.Context) ([]model.RawEvent, error) {
	result, err := a.fetcher.Fetch(ctx, a.dependency, a.url)
	if err != nil {
		return nil, err
	}
	events, err := ParseFeed(result.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", a.url, err)
	}
	a.stamp(events)
	a.log.WithField("items", len(events)).Debug("feed fetched")
	return events, nil
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 (RDF) puts items at the top level
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	PubDate     string   `xml:"pubDate"`
	DCDate      string   `xml:"http://purl.org/dc/elements/1.1/ date"`
	Categories  []string `xml:"category"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	ID        string     `xml:"id"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// ParseFeed decodes RSS 2.0, RSS 1.0 or Atom into raw events
func ParseFeed(body []byte) ([]model.RawEvent, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss", "RDF":
		var doc rssDocument
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
		items := doc.Channel.Items
		if len(items) == 0 {
			items = doc.Items
		}
		events := make([]model.RawEvent, 0, len(items))
		for _, item := range items {
			if ev, ok := rssEvent(item); ok {
				events = append(events, ev)
			}
		}
		return events, nil
	case "feed":
		var doc atomFeed
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
		events := make([]model.RawEvent, 0, len(doc.Entries))
		for _, entry := range doc.Entries {
			if ev, ok := atomEvent(entry); ok {
				events = append(events, ev)
			}
		}
		return events, nil
	default:
		return nil, fmt.Errorf("unsupported feed root element <%s>", root)
	}
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("empty feed document")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func rssEvent(item rssItem) (model.RawEvent, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	title := cleanText(item.Title)
	if link == "" || title == "" {
		return model.RawEvent{}, false
	}

	content := item.Encoded
	if content == "" {
		content = item.Description
	}
	published := item.PubDate
	if published == "" {
		published = item.DCDate
	}

	ev := model.RawEvent{
		SourceURL: link,
		Title:     title,
		Content:   cleanText(content),
		Excerpt:   model.Truncate(cleanText(item.Description), 500),
		Meta: model.SourceMeta{
			Published: strings.TrimSpace(published),
		},
	}
	if len(item.Categories) > 0 {
		ev.Meta.Extra = map[string]string{"categories": strings.Join(item.Categories, ", ")}
	}
	return ev, true
}

func atomEvent(entry atomEntry) (model.RawEvent, bool) {
	link := ""
	for _, l := range entry.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			link = strings.TrimSpace(l.Href)
			break
		}
	}
	if link == "" {
		link = strings.TrimSpace(entry.ID)
	}
	title := cleanText(entry.Title)
	if link == "" || title == "" {
		return model.RawEvent{}, false
	}

	content := entry.Content
	if content == "" {
		content = entry.Summary
	}
	published := entry.Published
	if published == "" {
		published = entry.Updated
	}

	return model.RawEvent{
		SourceURL: link,
		Title:     title,
		Content:   cleanText(content),
		Excerpt:   model.Truncate(cleanText(entry.Summary), 500),
		Meta: model.SourceMeta{
			Published: strings.TrimSpace(published),
		},
	}, true
}

// cleanText strips markup that feeds embed in titles and descriptions
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(nodeText(doc)), " ")
}
