package model

import "time"

// NoPage is the sentinel for "no page number on this request". It survives in
// the columnar output so downstream tooling can distinguish "absent" from any
// real folio number.
const NoPage = -999

// Category is the single coarse action assigned to a request by the endpoint
// classifier. Exactly one category holds per classified request.
type Category string

const (
	CategoryHomepage         Category = "homepage"
	CategoryDocument         Category = "document"
	CategoryDocumentDownload Category = "document_download"
	CategoryPageDownload     Category = "page_download"
	CategoryIIIF             Category = "iiif"
	CategoryStaticAsset      Category = "static_asset"
	CategoryBlog             Category = "blog"
	CategoryServices         Category = "services"
	CategorySimpleSearch     Category = "simple_search"
	CategoryAdvancedSearch   Category = "advanced_search"
	CategoryFilteringSearch  Category = "filtering_search_results"
	CategoryPagination       Category = "pagination"
	CategoryMode             Category = "mode"
	CategoryZoom             Category = "zoom"
	CategoryHeading          Category = "heading"
)

// Retained reports whether requests in this category feed session
// construction. IIIF tile traffic, static assets and generic service calls
// are classified for accounting but carry no navigation meaning.
func (c Category) Retained() bool {
	switch c {
	case CategoryIIIF, CategoryStaticAsset, CategoryServices:
		return false
	}
	return true
}

// PageBearing reports whether the category can carry a page number that
// advances the per-document page chain.
func (c Category) PageBearing() bool {
	return c == CategoryDocument || c == CategoryPagination
}

// ParsedRequest is one access-log line lifted into a typed record.
// Referrer and UserAgent are "" when the log carried "-" for the field.
type ParsedRequest struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Endpoint  string    `json:"endpoint"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Country   string    `json:"country"`
	City      string    `json:"city"`
}

// ClassifiedRequest is a ParsedRequest with its single category and the
// category-specific parameters extracted from the endpoint.
type ClassifiedRequest struct {
	ParsedRequest

	Category   Category `json:"category"`
	Ark        string   `json:"ark,omitempty"`
	DocTokens  []string `json:"doc_tokens,omitempty"`
	PageNumber int      `json:"page_number"`
	Mode       string   `json:"mode,omitempty"`
	IsBot      bool     `json:"is_bot"`
}

// RecordID identifies a request in diagnostics (exclusivity violations,
// noise reports). User plus timestamp plus endpoint is unique after the
// per-chunk de-duplication pass.
func (r ClassifiedRequest) RecordID() string {
	return r.User + "@" + r.Timestamp.Format(time.RFC3339) + " " + r.Endpoint
}
