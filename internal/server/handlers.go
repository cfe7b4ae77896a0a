package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/igm503/arxiv-troller/internal/latex"
	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/search"
	"github.com/igm503/arxiv-troller/internal/store"
)

// SearchRequest is the request for /search. GET requests bind from query
// parameters, POST requests from the JSON body.
type SearchRequest struct {
	Query         string  `form:"query" json:"query"`
	DateFilter    string  `form:"date_filter" json:"date_filter"`
	Category      string  `form:"category" json:"category"`
	SinglePaper   string  `form:"single_paper" json:"single_paper"`
	SearchAll     bool    `form:"search_all" json:"search_all"`
	TagID         int64   `form:"tag_id" json:"tag_id"`
	ExcludeTagged bool    `form:"exclude_tagged" json:"exclude_tagged"`
	ExcludeIDs    []int64 `form:"exclude_ids" json:"exclude_ids"`
	Offset        int     `form:"offset" json:"offset"`
}

// PaperBody is one paper rendered into a response.
type PaperBody struct {
	ID         int64      `json:"id"`
	ArxivID    string     `json:"arxiv_id"`
	Title      string     `json:"title"`
	Abstract   string     `json:"abstract"`
	Created    time.Time  `json:"created"`
	Updated    *time.Time `json:"updated,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Authors    []string   `json:"authors,omitempty"`
}

// ResultBody is one search hit with its annotations.
type ResultBody struct {
	PaperBody
	Tags              []string `json:"tags,omitempty"`
	Similarity        float64  `json:"similarity,omitempty"`
	ProcessedTitle    string   `json:"processed_title"`
	ProcessedAbstract string   `json:"processed_abstract"`
}

// QueryErrorBody reports a rejected query inside an otherwise-OK response.
type QueryErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TagBody is a tag rendered into a response.
type TagBody struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SearchResponse is the uniform /search envelope.
type SearchResponse struct {
	Mode           string          `json:"mode"`
	Error          *QueryErrorBody `json:"error,omitempty"`
	Results        []ResultBody    `json:"results"`
	HasMore        bool            `json:"has_more"`
	NextExcludeIDs []int64         `json:"next_exclude_ids,omitempty"`
	NextOffset     int             `json:"next_offset,omitempty"`
	SourcePaper    *PaperBody      `json:"source_paper,omitempty"`
	SourceTag      *TagBody        `json:"source_tag,omitempty"`
	Categories     []string        `json:"categories,omitempty"`
}

// ErrorResponse is the response body for transport-level errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// userID reads the upstream-injected user header. Zero means anonymous.
func userID(c *gin.Context) int64 {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func toPaperBody(p *papers.Paper) PaperBody {
	body := PaperBody{
		ID:         p.ID,
		ArxivID:    p.ArxivID,
		Title:      p.Title,
		Abstract:   p.Abstract,
		Created:    p.Created,
		Categories: p.Categories,
	}
	if !p.Updated.IsZero() {
		updated := p.Updated
		body.Updated = &updated
	}
	for _, a := range p.Authors {
		body.Authors = append(body.Authors, a.Name())
	}
	return body
}

// handleSearch handles GET and POST /search requests.
func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request: " + err.Error(),
		})
		return
	}

	page, err := s.searcher.Search(c.Request.Context(), search.Request{
		UserID:              userID(c),
		Query:               req.Query,
		DateFilter:          req.DateFilter,
		Category:            req.Category,
		SinglePaper:         req.SinglePaper,
		SearchAll:           req.SearchAll,
		ScopeTagID:          req.TagID,
		ExcludeScopeMembers: req.ExcludeTagged,
		ExcludeIDs:          req.ExcludeIDs,
		Offset:              req.Offset,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Search failed",
		})
		return
	}

	resp := SearchResponse{
		Mode:           page.Mode,
		Results:        make([]ResultBody, 0, len(page.Results)),
		HasMore:        page.HasMore,
		NextExcludeIDs: page.NextExcludeIDs,
		NextOffset:     page.NextOffset,
		Categories:     page.Categories,
	}
	if page.Err != nil {
		resp.Error = &QueryErrorBody{
			Kind:    string(page.Err.Kind),
			Message: page.Err.Message,
		}
	}
	if page.SourcePaper != nil {
		body := toPaperBody(page.SourcePaper)
		resp.SourcePaper = &body
	}
	if page.SourceTag != nil {
		resp.SourceTag = &TagBody{ID: page.SourceTag.ID, Name: page.SourceTag.Name}
	}
	for _, r := range page.Results {
		resp.Results = append(resp.Results, ResultBody{
			PaperBody:         toPaperBody(r.Paper),
			Tags:              r.Tags,
			Similarity:        r.Similarity,
			ProcessedTitle:    r.ProcessedTitle,
			ProcessedAbstract: r.ProcessedAbstract,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// PaperDetailResponse is the response body for /papers/:id.
type PaperDetailResponse struct {
	PaperBody
	ProcessedTitle    string   `json:"processed_title"`
	ProcessedAbstract string   `json:"processed_abstract"`
	HasEmbedding      bool     `json:"has_embedding"`
	Tags              []string `json:"tags,omitempty"`
}

// handlePaper handles GET /papers/:id. The id resolves first as the internal
// surrogate id, falling back to arXiv id.
func (s *Server) handlePaper(c *gin.Context) {
	raw := c.Param("id")

	var (
		p   *papers.Paper
		err error
	)
	if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
		p, err = s.papers.PaperByID(c.Request.Context(), n)
		if errors.Is(err, store.ErrNotFound) {
			p, err = s.papers.PaperByArxivID(c.Request.Context(), raw)
		}
	} else {
		p, err = s.papers.PaperByArxivID(c.Request.Context(), raw)
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Paper '" + raw + "' does not exist"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("id", raw).Msg("paper lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Lookup failed"})
		return
	}

	hasEmbedding, err := s.index.HasEmbedding(c.Request.Context(), p.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("paper_id", p.ID).Msg("embedding check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Lookup failed"})
		return
	}

	resp := PaperDetailResponse{
		PaperBody:         toPaperBody(p),
		ProcessedTitle:    latex.Process(p.Title),
		ProcessedAbstract: latex.Process(p.Abstract),
		HasEmbedding:      hasEmbedding,
	}
	if uid := userID(c); uid != 0 {
		tagNames, err := s.tags.TagsForPapers(c.Request.Context(), uid, []int64{p.ID})
		if err != nil {
			s.logger.Error().Err(err).Int64("paper_id", p.ID).Msg("tag lookup failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Lookup failed"})
			return
		}
		resp.Tags = tagNames[p.ID]
	}

	c.JSON(http.StatusOK, resp)
}

// TagPapersResponse is the response body for /tags/:id/papers.
type TagPapersResponse struct {
	Tag    TagBody      `json:"tag"`
	Sort   string       `json:"sort"`
	Papers []MemberBody `json:"papers"`
}

// MemberBody is one tagged paper in a drawer listing.
type MemberBody struct {
	PaperBody
	ProcessedTitle string    `json:"processed_title"`
	AddedAt        time.Time `json:"added_at"`
}

// handleTagPapers handles GET /tags/:id/papers, the drawer listing. Requires
// an authenticated user; tags are visible to their owner only.
func (s *Server) handleTagPapers(c *gin.Context) {
	uid := userID(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "You must be logged in to list tags"})
		return
	}

	tagID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid tag id"})
		return
	}

	tag, err := s.tags.TagByID(c.Request.Context(), uid, tagID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Tag does not exist"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("tag_id", tagID).Msg("tag lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Lookup failed"})
		return
	}

	sortParam := store.MemberSort(c.DefaultQuery("sort", string(store.SortAdded)))
	members, err := s.tags.TagMembers(c.Request.Context(), tag.ID, sortParam)
	if err != nil {
		s.logger.Error().Err(err).Int64("tag_id", tag.ID).Msg("member listing failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Lookup failed"})
		return
	}

	resp := TagPapersResponse{
		Tag:    TagBody{ID: tag.ID, Name: tag.Name},
		Sort:   string(sortParam),
		Papers: make([]MemberBody, 0, len(members)),
	}
	for _, m := range members {
		resp.Papers = append(resp.Papers, MemberBody{
			PaperBody:      toPaperBody(m.Paper),
			ProcessedTitle: latex.Process(m.Paper.Title),
			AddedAt:        m.AddedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// HealthResponse is the response body for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}
