package model

import "time"

// SessionRecord is a classified request placed inside a reconstructed
// session. Numbering fields are assigned by the segmenter after the
// abnormal-frequency filter, so they are final.
type SessionRecord struct {
	ClassifiedRequest

	SessionNumber int     `json:"session_number"`
	Position      int     `json:"position"`
	SessionID     string  `json:"session_id"`
	RequestID     string  `json:"request_id"`
	SessionEnd    bool    `json:"session_end"`
	GapSeconds    float64 `json:"gap_seconds"`
}

// SessionStats aggregates one session of one user.
// Frequency is undefined (FreqDefined false) for zero-duration sessions;
// such a session can never be flagged on its own.
type SessionStats struct {
	User          string
	SessionNumber int
	RequestCount  int
	ElapsedSec    float64
	Frequency     float64
	FreqDefined   bool
}

// FineAction is the single refined navigation tag derived for an event from
// its sequential context inside a session.
type FineAction string

const (
	ActionDocumentAccess   FineAction = "document_access"
	ActionRevisitDocument  FineAction = "revisit_document"
	ActionFirstPage        FineAction = "first_page"
	ActionNextPage         FineAction = "next_page"
	ActionPrevPage         FineAction = "prev_page"
	ActionChosenPage       FineAction = "chosen_page"
	ActionHomepage         FineAction = "homepage"
	ActionHeadingNav       FineAction = "heading_navigation"
	ActionBlogNav          FineAction = "blog_navigation"
	ActionSimpleSearch     FineAction = "simple_search"
	ActionAdvancedSearch   FineAction = "advanced_search"
	ActionFilteringSearch  FineAction = "filtering_search_results"
	ActionDocumentDownload FineAction = "document_download"
	ActionPageDownload     FineAction = "page_download"
	ActionToSinglePage     FineAction = "to_single_page_mode"
	ActionToDoublePage     FineAction = "to_double_page_mode"
	ActionToMultiPage      FineAction = "to_multi_page_mode"
	ActionToVerticalPage   FineAction = "to_vertical_page_mode"
	ActionToAudioPage      FineAction = "to_audio_page_mode"
	ActionZoom             FineAction = "zoom"
)

// NavigationEvent is the terminal projection consumed by downstream
// behavioral analysis: one fine-grained action inside one session.
type NavigationEvent struct {
	SessionID string     `json:"session_id"`
	Action    FineAction `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
	Ark       string     `json:"ark,omitempty"`
}
