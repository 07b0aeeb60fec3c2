package modules

import (
	"context"
	"time"
)

// Engagement counters of a post. Providers that omit a counter leave it at zero.
type Engagement struct {
	Likes   int `json:"likes"`
	Shares  int `json:"shares"`
	Replies int `json:"replies"`
}

// Total is the relevance proxy used to order posts within a page.
func (e Engagement) Total() int {
	return e.Likes + e.Shares
}

// Post is one social-media message returned by the search provider.
type Post struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
	Engagement Engagement `json:"engagement"`
}

// PageResult is a single page of search results. An empty NextCursor means
// there are no further pages.
type PageResult struct {
	Posts      []Post
	NextCursor string
}

// SearchRequest describes one page request against the search provider.
type SearchRequest struct {
	WorkspaceID string
	Query       string
	Since       time.Time
	PageSize    int
	Cursor      string
	Fields      []string
}

// Searcher fetches one page of recent posts.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (PageResult, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, req SearchRequest) (PageResult, error)

func (f SearcherFunc) Search(ctx context.Context, req SearchRequest) (PageResult, error) {
	return f(ctx, req)
}
