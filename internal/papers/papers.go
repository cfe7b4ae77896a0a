// Package papers holds the domain model shared by the store, the retrieval
// core, and the harvesting/embedding jobs.
package papers

import "time"

// Paper is one harvested arXiv record. Immutable after harvest except for
// Updated and metadata corrections.
type Paper struct {
	ID         int64
	ArxivID    string
	Title      string
	Abstract   string
	Created    time.Time
	Updated    time.Time // zero when arXiv reported no update
	Categories []string
	Authors    []Author // in publication order
}

// Author identity is the (Keyname, Forenames) pair. Two authors with the
// same keyname and both-empty forenames are the same entity.
type Author struct {
	ID        int64
	Keyname   string
	Forenames string
}

// Name renders the author for display.
func (a Author) Name() string {
	if a.Forenames == "" {
		return a.Keyname
	}
	return a.Forenames + " " + a.Keyname
}

// Tag is a user's named collection of papers. Names are unique per user.
type Tag struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaggedPaper is a membership edge between a tag and a paper.
type TaggedPaper struct {
	Tag     *Tag
	Paper   *Paper
	AddedAt time.Time
}

// Citation is a directed edge between papers. Populated by an external
// harvester; the retrieval core never reads it.
type Citation struct {
	CitingPaperID int64
	CitedPaperID  int64
	CreatedAt     time.Time
}
