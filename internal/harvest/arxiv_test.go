package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
)

const feedPage = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v2</id>
    <title>Attention Is Not
      All You Need</title>
    <summary>  We revisit the role of
      attention.  </summary>
    <published>2023-01-17T12:00:00Z</published>
    <updated>2023-02-01T09:30:00Z</updated>
    <author><name>Ada M. Lovelace</name></author>
    <author><name>Turing</name></author>
    <category term="cs.LG"/>
    <category term="stat.ML"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2301.07042v1</id>
    <title>Unrevised Paper</title>
    <summary>No revision yet.</summary>
    <published>2023-01-17T13:00:00Z</published>
    <updated>2023-01-17T13:00:00Z</updated>
    <author><name>Grace Hopper</name></author>
    <category term="cs.LG"/>
  </entry>
</feed>`

func TestListCategory(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(feedPage))
	}))
	defer srv.Close()

	orig := arxivAPIBase
	arxivAPIBase = srv.URL
	defer func() { arxivAPIBase = orig }()

	c := NewClient("troller-test")
	page, err := c.ListCategory(context.Background(), "cs.LG", 0, 100)
	if err != nil {
		t.Fatalf("ListCategory() error: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d entries, want 2", len(page))
	}

	for _, frag := range []string{"search_query=cat%3Acs.LG", "sortBy=submittedDate", "max_results=100"} {
		if !strings.Contains(gotQuery, frag) {
			t.Errorf("query %q missing %q", gotQuery, frag)
		}
	}

	p := page[0]
	if p.ArxivID != "2301.07041" {
		t.Errorf("ArxivID = %q, want version suffix stripped", p.ArxivID)
	}
	if p.Title != "Attention Is Not All You Need" {
		t.Errorf("Title = %q, want hard wrap collapsed", p.Title)
	}
	if p.Abstract != "We revisit the role of attention." {
		t.Errorf("Abstract = %q", p.Abstract)
	}
	if !p.Created.Equal(time.Date(2023, 1, 17, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Created = %v", p.Created)
	}
	if !p.Updated.Equal(time.Date(2023, 2, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Updated = %v", p.Updated)
	}
	if len(p.Categories) != 2 || p.Categories[0] != "cs.LG" || p.Categories[1] != "stat.ML" {
		t.Errorf("Categories = %v", p.Categories)
	}
	if len(p.Authors) != 2 {
		t.Fatalf("got %d authors, want 2", len(p.Authors))
	}
	if p.Authors[0].Keyname != "Lovelace" || p.Authors[0].Forenames != "Ada M." {
		t.Errorf("author[0] = %+v", p.Authors[0])
	}
	if p.Authors[1].Keyname != "Turing" || p.Authors[1].Forenames != "" {
		t.Errorf("single-token author = %+v", p.Authors[1])
	}

	// updated == published means no revision.
	if !page[1].Updated.IsZero() {
		t.Errorf("unrevised paper got Updated = %v, want zero", page[1].Updated)
	}
}

func TestListCategoryHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	orig := arxivAPIBase
	arxivAPIBase = srv.URL
	defer func() { arxivAPIBase = orig }()

	c := NewClient("troller-test")
	if _, err := c.ListCategory(context.Background(), "cs.LG", 0, 10); err == nil {
		t.Fatalf("ListCategory() accepted HTTP 503")
	}
}

type recordingWriter struct {
	written []string
}

func (w *recordingWriter) UpsertPaper(_ context.Context, p *papers.Paper) error {
	w.written = append(w.written, p.ArxivID)
	return nil
}

func TestHarvesterPagination(t *testing.T) {
	// Three pages: full, full, short. The short page ends the category.
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		switch r.URL.Query().Get("start") {
		case "0", "2":
			w.Write([]byte(twoEntryPage))
		default:
			w.Write([]byte(oneEntryPage))
		}
	}))
	defer srv.Close()

	orig := arxivAPIBase
	arxivAPIBase = srv.URL
	defer func() { arxivAPIBase = orig }()

	writer := &recordingWriter{}
	h := New(NewClient("troller-test"), writer, Config{
		Categories:     []string{"cs.LG"},
		PageSize:       2,
		MaxPerCategory: 100,
	}, zerolog.Nop())
	h.sleep = func(context.Context, time.Duration) error { return nil }

	total, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if total != 5 {
		t.Errorf("Run() wrote %d papers, want 5", total)
	}
	if pages != 3 {
		t.Errorf("made %d API calls, want 3", pages)
	}
}

const twoEntryPage = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.00001v1</id>
    <title>A</title><summary>a</summary>
    <published>2023-01-01T00:00:00Z</published>
    <updated>2023-01-01T00:00:00Z</updated>
    <author><name>X</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2301.00002v1</id>
    <title>B</title><summary>b</summary>
    <published>2023-01-01T00:00:00Z</published>
    <updated>2023-01-01T00:00:00Z</updated>
    <author><name>Y</name></author>
  </entry>
</feed>`

const oneEntryPage = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.00003v1</id>
    <title>C</title><summary>c</summary>
    <published>2023-01-01T00:00:00Z</published>
    <updated>2023-01-01T00:00:00Z</updated>
    <author><name>Z</name></author>
  </entry>
</feed>`
