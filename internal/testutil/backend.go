package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/dsl"
)

// ErrNoPage is returned when a FakeBackend runs out of scripted pages.
var ErrNoPage = errors.New("fake backend: no scripted page left")

// FakeBackend replays scripted responses. Search returns the first page,
// each Scroll the next one. It records every request and scroll release.
type FakeBackend struct {
	mu       sync.Mutex
	pages    []*backend.Response
	next     int
	searches []*dsl.Request
	scrolls  []string
	cleared  []string

	// SearchErr and ScrollErr, when set, fail the matching call.
	SearchErr error
	ScrollErr error
}

var _ backend.Client = (*FakeBackend)(nil)

// NewFakeBackend creates a backend answering with pages in order.
func NewFakeBackend(pages ...*backend.Response) *FakeBackend {
	return &FakeBackend{pages: pages}
}

// Search records req and returns the next scripted page.
func (f *FakeBackend) Search(_ context.Context, req *dsl.Request) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return f.pop()
}

// Scroll records the id and returns the next scripted page.
func (f *FakeBackend) Scroll(_ context.Context, scrollID string, _ time.Duration) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls = append(f.scrolls, scrollID)
	if f.ScrollErr != nil {
		return nil, f.ScrollErr
	}
	return f.pop()
}

// ClearScroll records the release.
func (f *FakeBackend) ClearScroll(_ context.Context, scrollID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, scrollID)
	return nil
}

func (f *FakeBackend) pop() (*backend.Response, error) {
	if f.next >= len(f.pages) {
		return nil, ErrNoPage
	}
	page := f.pages[f.next]
	f.next++
	return page, nil
}

// Searches returns the requests passed to Search.
func (f *FakeBackend) Searches() []*dsl.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dsl.Request(nil), f.searches...)
}

// Scrolls returns the ids passed to Scroll.
func (f *FakeBackend) Scrolls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scrolls...)
}

// Cleared returns the ids passed to ClearScroll, in call order.
func (f *FakeBackend) Cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

// Hits builds a page of documents from sources keyed by id, in order.
func Hits(index string, total int64, scrollID string, docs ...map[string]any) *backend.Response {
	resp := &backend.Response{Total: total, ScrollID: scrollID}
	for _, doc := range docs {
		id, _ := doc["_id"].(string)
		src := make(map[string]any, len(doc))
		for k, v := range doc {
			if k != "_id" {
				src[k] = v
			}
		}
		resp.Hits = append(resp.Hits, backend.Hit{ID: id, Index: index, Type: "_doc", Source: src})
	}
	return resp
}
