// Package harvest ingests arXiv paper metadata: an Atom API client and the
// job that writes records into the relational store.
package harvest

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/igm503/arxiv-troller/internal/papers"
)

// arxivAPIBase is the arXiv query endpoint. Declared as a var so tests can
// substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// Client queries the arXiv Atom API.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// NewClient creates an API client with sane timeouts.
func NewClient(userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		UserAgent: userAgent,
	}
}

// ListCategory fetches one page of a category's submissions, newest first.
// start is the zero-based offset into the feed.
func (c *Client) ListCategory(ctx context.Context, category string, start, max int) ([]*papers.Paper, error) {
	query := url.Values{
		"search_query": {"cat:" + category},
		"start":        {strconv.Itoa(start)},
		"max_results":  {strconv.Itoa(max)},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var out []*papers.Paper
	for _, entry := range feed.Entries {
		p := entry.toPaper()
		if p == nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Updated    string          `xml:"updated"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

func (e arxivEntry) toPaper() *papers.Paper {
	arxivID := extractArxivID(e.ID)
	if arxivID == "" {
		return nil
	}

	p := &papers.Paper{
		ArxivID:  arxivID,
		Title:    collapseWhitespace(e.Title),
		Abstract: collapseWhitespace(e.Summary),
	}

	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		p.Created = t
	}
	// arXiv reports updated == published for unrevised papers; the store
	// keeps Updated zero in that case.
	if t, err := time.Parse(time.RFC3339, e.Updated); err == nil && !t.Equal(p.Created) {
		p.Updated = t
	}

	for _, c := range e.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	for _, a := range e.Authors {
		author := splitAuthorName(a.Name)
		if author.Keyname != "" {
			p.Authors = append(p.Authors, author)
		}
	}
	return p
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// splitAuthorName maps the feed's display name onto the (keyname, forenames)
// identity: the last token is the keyname.
func splitAuthorName(name string) papers.Author {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return papers.Author{}
	}
	return papers.Author{
		Keyname:   fields[len(fields)-1],
		Forenames: strings.Join(fields[:len(fields)-1], " "),
	}
}

// collapseWhitespace normalizes the feed's hard-wrapped text fields.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
