package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/kmatov/barcache/internal/model"
)

// headlineWire is the wire format for one headline.
type headlineWire struct {
	StoryID   string `json:"story_id"`
	Headline  string `json:"headline"`
	Sources   string `json:"sources"`
	Symbols   string `json:"symbols"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

type headlinesResponse struct {
	Headlines []headlineWire `json:"headlines"`
}

type storyResponse struct {
	StoryID string `json:"story_id"`
	Text    string `json:"text"`
}

// Headlines fetches one filter's worth of headlines as records, preserving
// the wire field order.
func (c *Client) Headlines(ctx context.Context, f model.NewsFilter) ([]model.Record, error) {
	query := url.Values{}
	if len(f.Sources) > 0 {
		query.Set("sources", strings.Join(f.Sources, ","))
	}
	if len(f.Symbols) > 0 {
		query.Set("symbols", strings.Join(f.Symbols, ","))
	}
	if !f.Date.IsZero() {
		query.Set("date", f.Date.UTC().Format("2006-01-02"))
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}

	var resp headlinesResponse
	if err := c.get(ctx, "/news/headlines", query, &resp); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(resp.Headlines))
	for _, w := range resp.Headlines {
		records = append(records, headlineRecord(w))
	}

	return records, nil
}

// Story fetches one story's full text.
func (c *Client) Story(ctx context.Context, storyID string) (string, error) {
	var resp storyResponse
	if err := c.get(ctx, "/news/story/"+url.PathEscape(storyID), nil, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func headlineRecord(w headlineWire) model.Record {
	var r model.Record
	r.Set("story_id", w.StoryID)
	r.Set("headline", w.Headline)
	r.Set("sources", w.Sources)
	r.Set("symbols", w.Symbols)
	r.Set("timestamp", w.Timestamp)
	return r
}
