package api

import (
	"github.com/starford/eihwaz/internal/index"
	"github.com/starford/eihwaz/internal/tagservice"
)

// AssignRequest is the request body for assigning or removing tags on a file.
type AssignRequest struct {
	File string   `json:"file"`
	Tags []string `json:"tags"`
}

// ApplyRequest is the request body for applying a definition document.
// Definition may be empty to use the server's configured path.
type ApplyRequest struct {
	Definition string `json:"definition,omitempty"`
}

// OpReport is the per-operation outcome in an assign/remove response.
type OpReport struct {
	File     string `json:"file,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Message  string `json:"message"`
	Rejected bool   `json:"rejected"`
}

// AssignResponse wraps a batch of operation reports.
type AssignResponse struct {
	Reports []OpReport `json:"reports"`
}

// FilesResponse wraps a file path list.
type FilesResponse struct {
	Files []string `json:"files"`
}

// TagListResponse wraps the tag listing.
type TagListResponse struct {
	Tags []tagservice.TagInfo `json:"tags"`
}

// InspectResponse wraps per-file inspection results.
type InspectResponse struct {
	Files []tagservice.FileTags `json:"files"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

func reportDTO(r tagservice.Report) OpReport {
	if r.Rejected() {
		return OpReport{Message: r.Err.Error(), Rejected: true}
	}
	return OpReport{
		File:    r.Result.File,
		Tag:     r.Result.Tag,
		Message: r.Result.String(),
	}
}
