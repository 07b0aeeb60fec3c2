package modules

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeSearcher serves pages keyed by cursor; "" is the first page.
type fakeSearcher struct {
	mu       sync.Mutex
	pages    map[string]PageResult
	failAt   string
	err      error
	requests []SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req SearchRequest) (PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil && req.Cursor == f.failAt {
		return PageResult{}, f.err
	}
	page, ok := f.pages[req.Cursor]
	if !ok {
		return PageResult{}, fmt.Errorf("unexpected cursor %q", req.Cursor)
	}
	return page, nil
}

type fakeMarket struct {
	snap  MarketSnapshot
	err   error
	calls int
}

func (f *fakeMarket) Snapshot(_ context.Context, assetID string) (MarketSnapshot, error) {
	f.calls++
	if f.err != nil {
		return MarketSnapshot{}, f.err
	}
	s := f.snap
	if s.ID == "" {
		s.ID = assetID
	}
	return s, nil
}

type delivery struct {
	recipient string
	text      string
}

type fakeNotifier struct {
	mu        sync.Mutex
	name      string
	err       error
	delivered []delivery
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Deliver(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, delivery{recipient: recipient, text: text})
	return nil
}

// wordScorer scores +1 per "good" and -1 per "bad".
var wordScorer = ScorerFunc(func(text string) float64 {
	score := 0.0
	for _, w := range strings.Fields(strings.ToLower(text)) {
		switch strings.Trim(w, ".,!?") {
		case "good":
			score++
		case "bad":
			score--
		}
	}
	return score
})

func post(id, text string, likes, shares, replies int) Post {
	return Post{ID: id, Text: text, Engagement: Engagement{Likes: likes, Shares: shares, Replies: replies}}
}

func ids(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
