package search

import (
	"context"
	"testing"
	"time"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store/memstore"
)

func TestClassify(t *testing.T) {
	st := memstore.New(floatVariant)
	user := int64(7)
	paper := st.AddPaper(&papers.Paper{ArxivID: "2301.00001", Title: "source", Created: testNow.Add(-time.Hour)})
	tag := st.AddTag(&papers.Tag{UserID: user, Name: "reading"})

	s := newTestSearcher(st, st, Config{})

	tests := []struct {
		name     string
		req      Request
		wantMode mode
		wantErr  ErrorKind
		check    func(t *testing.T, p plan)
	}{
		{
			name:     "empty query",
			req:      Request{Query: "   "},
			wantMode: modeNone,
		},
		{
			name:     "free text is keyword",
			req:      Request{Query: "quantum error correction"},
			wantMode: modeKeyword,
			check: func(t *testing.T, p plan) {
				if p.query != "quantum error correction" {
					t.Errorf("query = %q", p.query)
				}
			},
		},
		{
			name:     "title prefix",
			req:      Request{Query: "title: attention is all"},
			wantMode: modeTitle,
			check: func(t *testing.T, p plan) {
				if p.query != "attention is all" {
					t.Errorf("query = %q", p.query)
				}
			},
		},
		{
			name:     "prefix requires one space",
			req:      Request{Query: "title:attention"},
			wantMode: modeKeyword,
		},
		{
			name:     "paper prefix by arxiv id",
			req:      Request{Query: "paper: 2301.00001"},
			wantMode: modeSingle,
			check: func(t *testing.T, p plan) {
				if p.paper == nil || p.paper.ID != paper.ID {
					t.Errorf("paper not resolved")
				}
			},
		},
		{
			name:    "paper prefix unknown id",
			req:     Request{Query: "paper: 9999.99999"},
			wantErr: ErrPaperNotFound,
		},
		{
			name:     "tag prefix authenticated",
			req:      Request{UserID: user, Query: "tag: reading"},
			wantMode: modeTag,
			check: func(t *testing.T, p plan) {
				if p.tag == nil || p.tag.ID != tag.ID {
					t.Errorf("tag not resolved")
				}
			},
		},
		{
			name:    "tag prefix anonymous",
			req:     Request{Query: "tag: reading"},
			wantErr: ErrLoginRequired,
		},
		{
			name:    "tag prefix unknown tag",
			req:     Request{UserID: user, Query: "tag: missing"},
			wantErr: ErrTagNotFound,
		},
		{
			name:    "other user's tag is invisible",
			req:     Request{UserID: 99, Query: "tag: reading"},
			wantErr: ErrTagNotFound,
		},
		{
			name:     "explicit single paper beats tag prefix",
			req:      Request{UserID: user, Query: "tag: reading", SinglePaper: "2301.00001"},
			wantMode: modeSingle,
		},
		{
			name:     "explicit search-all beats paper prefix",
			req:      Request{UserID: user, Query: "paper: 2301.00001", SearchAll: true, ScopeTagID: tag.ID},
			wantMode: modeTag,
		},
		{
			name:    "explicit search-all anonymous",
			req:     Request{Query: "anything", SearchAll: true, ScopeTagID: tag.ID},
			wantErr: ErrLoginRequired,
		},
		{
			name:     "search-all without scope tag falls through",
			req:      Request{UserID: user, Query: "quantum", SearchAll: true},
			wantMode: modeKeyword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, qerr, err := s.classify(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("classify() error: %v", err)
			}
			if tt.wantErr != "" {
				if qerr == nil || qerr.Kind != tt.wantErr {
					t.Fatalf("qerr = %v, want kind %s", qerr, tt.wantErr)
				}
				return
			}
			if qerr != nil {
				t.Fatalf("unexpected query error: %v", qerr)
			}
			if p.mode != tt.wantMode {
				t.Fatalf("mode = %s, want %s", p.mode, tt.wantMode)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

// Surrogate-id lookup is tried first for numeric input, with arXiv-id
// fallback for numeric strings that match no internal id.
func TestClassifyPaperNumericFallback(t *testing.T) {
	st := memstore.New(floatVariant)
	byID := st.AddPaper(&papers.Paper{ID: 42, ArxivID: "2301.00042", Title: "by id"})
	old := st.AddPaper(&papers.Paper{ArxivID: "9912345", Title: "old style id"})

	s := newTestSearcher(st, st, Config{})

	p, qerr, err := s.classify(context.Background(), Request{SinglePaper: "42"})
	if err != nil || qerr != nil {
		t.Fatalf("classify(42): qerr=%v err=%v", qerr, err)
	}
	if p.paper.ID != byID.ID {
		t.Errorf("numeric id resolved to paper %d, want %d", p.paper.ID, byID.ID)
	}

	p, qerr, err = s.classify(context.Background(), Request{SinglePaper: "9912345"})
	if err != nil || qerr != nil {
		t.Fatalf("classify(9912345): qerr=%v err=%v", qerr, err)
	}
	if p.paper.ID != old.ID {
		t.Errorf("old-style arxiv id resolved to paper %d, want %d", p.paper.ID, old.ID)
	}
}
