package fetcher

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// Parser turns feed bytes into feeds.RawFeed using gofeed, which understands
// RSS 0.9x/1.0/2.0, Atom, and JSON Feed. It is safe for concurrent use.
type Parser struct{}

// NewParser builds a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes body. Items keep feed order.
func (p *Parser) Parse(body []byte) (feeds.RawFeed, error) {
	// gofeed parsers keep per-document state, so each call gets its own.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return feeds.RawFeed{}, fmt.Errorf("parse feed: %w", err)
	}
	out := feeds.RawFeed{
		Title: strings.TrimSpace(parsed.Title),
		Link:  strings.TrimSpace(parsed.Link),
	}
	switch {
	case parsed.UpdatedParsed != nil:
		out.Updated = parsed.UpdatedParsed.UTC()
	case parsed.PublishedParsed != nil:
		out.Updated = parsed.PublishedParsed.UTC()
	}
	out.Items = make([]feeds.RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		out.Items = append(out.Items, convertItem(item))
	}
	return out, nil
}

func convertItem(item *gofeed.Item) feeds.RawItem {
	raw := feeds.RawItem{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		GUID:    strings.TrimSpace(item.GUID),
		Content: item.Content,
		Summary: item.Description,
	}
	if raw.Link == "" {
		for _, l := range item.Links {
			if l = strings.TrimSpace(l); l != "" {
				raw.Link = l
				break
			}
		}
	}
	if t, ok := itemDate(item.PublishedParsed, item.Published); ok {
		raw.Dates = append(raw.Dates, t)
	}
	if t, ok := itemDate(item.UpdatedParsed, item.Updated); ok {
		raw.Dates = append(raw.Dates, t)
	}
	if item.DublinCoreExt != nil {
		for _, d := range item.DublinCoreExt.Date {
			if t, ok := parseLooseTime(d); ok {
				raw.Dates = append(raw.Dates, t)
				break
			}
		}
	}
	return raw
}

// itemDate prefers gofeed's parsed value and falls back to the raw text.
func itemDate(parsed *time.Time, text string) (time.Time, bool) {
	if parsed != nil {
		return parsed.UTC(), true
	}
	return parseLooseTime(text)
}

var looseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func parseLooseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range looseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
