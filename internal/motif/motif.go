// Package motif derives the fine-grained navigation action for every event
// in a session from its sequential context: which document the user is in,
// and which page of it was seen last.
//
// Like the coarse classifier, the tag rules must produce exactly one action
// per event; zero or several is a rule defect that aborts the chunk.
package motif

import (
	"fmt"

	"github.com/dhlab/gallicanav/internal/model"
)

// eventContext is what the tag rules see for one event: the record, its page
// number and the previously seen page in the same document of this session.
type eventContext struct {
	category model.Category
	mode     string
	page     int
	prev     int
}

func (c eventContext) hasPage() bool { return c.page != model.NoPage }
func (c eventContext) hasPrev() bool { return c.prev != model.NoPage }
func (c eventContext) delta() int    { return c.page - c.prev }

var rules = []struct {
	action model.FineAction
	match  func(eventContext) bool
}{
	{model.ActionDocumentAccess, func(c eventContext) bool {
		return c.category == model.CategoryDocument && !c.hasPage() && !c.hasPrev()
	}},
	{model.ActionRevisitDocument, func(c eventContext) bool {
		return c.category == model.CategoryDocument && !c.hasPage() && c.hasPrev()
	}},
	{model.ActionFirstPage, func(c eventContext) bool {
		return c.category.PageBearing() && c.hasPage() && !c.hasPrev()
	}},
	{model.ActionNextPage, func(c eventContext) bool {
		// +2 covers double-page spreads.
		return c.category.PageBearing() && c.hasPage() && c.hasPrev() &&
			(c.delta() == 1 || c.delta() == 2)
	}},
	{model.ActionPrevPage, func(c eventContext) bool {
		return c.category.PageBearing() && c.hasPage() && c.hasPrev() &&
			(c.delta() == -1 || c.delta() == -2)
	}},
	{model.ActionChosenPage, func(c eventContext) bool {
		d := c.delta()
		return c.category.PageBearing() && c.hasPage() && c.hasPrev() &&
			(d > 2 || d < -2)
	}},
	{model.ActionHomepage, matchCategory(model.CategoryHomepage)},
	{model.ActionHeadingNav, matchCategory(model.CategoryHeading)},
	{model.ActionBlogNav, matchCategory(model.CategoryBlog)},
	{model.ActionSimpleSearch, matchCategory(model.CategorySimpleSearch)},
	{model.ActionAdvancedSearch, matchCategory(model.CategoryAdvancedSearch)},
	{model.ActionFilteringSearch, matchCategory(model.CategoryFilteringSearch)},
	{model.ActionDocumentDownload, matchCategory(model.CategoryDocumentDownload)},
	{model.ActionPageDownload, matchCategory(model.CategoryPageDownload)},
	{model.ActionToSinglePage, matchMode("SINGLE")},
	{model.ActionToDoublePage, matchMode("DOUBLE")},
	{model.ActionToMultiPage, matchMode("MULTI")},
	{model.ActionToVerticalPage, matchMode("VERTICAL")},
	{model.ActionToAudioPage, func(c eventContext) bool {
		if c.category != model.CategoryMode {
			return false
		}
		switch c.mode {
		case "AUDIO", "TEXT_RAW", "MEDIA", "D3":
			return true
		}
		return false
	}},
	{model.ActionZoom, func(c eventContext) bool {
		return c.category == model.CategoryZoom ||
			(c.category == model.CategoryMode && c.mode == "ZOOM")
	}},
}

func matchCategory(cat model.Category) func(eventContext) bool {
	return func(c eventContext) bool { return c.category == cat }
}

func matchMode(mode string) func(eventContext) bool {
	return func(c eventContext) bool {
		return c.category == model.CategoryMode && c.mode == mode
	}
}

// ExclusivityError reports an event matching zero or more than one
// fine-grained action.
type ExclusivityError struct {
	RequestID string
	Matched   []model.FineAction
}

func (e *ExclusivityError) Error() string {
	return fmt.Sprintf("navigation tagging not exclusive for %s: %d actions %v",
		e.RequestID, len(e.Matched), e.Matched)
}

// sessionState tracks the per-session context: the ordinal of each document
// in first-seen order, and the last page seen per document ordinal. Only
// page-bearing actions (document, pagination) consult and advance the page
// chain; a mode switch in the middle of a read does not reset it. Events
// with no document identifier share one chain under ordinal zero.
type sessionState struct {
	ordinals map[string]int
	prevPage map[int]int
}

func newSessionState() *sessionState {
	return &sessionState{
		ordinals: make(map[string]int),
		prevPage: make(map[int]int),
	}
}

func (s *sessionState) ordinal(ark string) int {
	if ark == "" {
		return 0
	}
	if ord, ok := s.ordinals[ark]; ok {
		return ord
	}
	ord := len(s.ordinals) + 1
	s.ordinals[ark] = ord
	return ord
}

// Detect walks session-ordered records and emits one NavigationEvent per
// surviving record. Records must be grouped by session id (the segmenter's
// output order). Refresh duplicates (same page as the previous page in the
// same document) and pagination events without a page number are dropped.
func Detect(recs []model.SessionRecord) ([]model.NavigationEvent, error) {
	events := make([]model.NavigationEvent, 0, len(recs))

	var (
		state     *sessionState
		sessionID string
	)
	for _, r := range recs {
		if r.Category == model.CategoryPagination && r.PageNumber == model.NoPage {
			continue
		}
		if state == nil || r.SessionID != sessionID {
			state = newSessionState()
			sessionID = r.SessionID
		}

		ord := state.ordinal(r.Ark)
		ctx := eventContext{
			category: r.Category,
			mode:     r.Mode,
			page:     r.PageNumber,
			prev:     model.NoPage,
		}
		if r.Category.PageBearing() {
			if prev, ok := state.prevPage[ord]; ok {
				ctx.prev = prev
			}
		}

		// Same page as last time in this document: a refresh, not navigation.
		if ctx.hasPage() && ctx.page == ctx.prev {
			continue
		}

		var matched []model.FineAction
		for _, rule := range rules {
			if rule.match(ctx) {
				matched = append(matched, rule.action)
			}
		}
		if len(matched) != 1 {
			return nil, &ExclusivityError{RequestID: r.RequestID, Matched: matched}
		}

		if r.Category.PageBearing() {
			state.prevPage[ord] = r.PageNumber
		}

		events = append(events, model.NavigationEvent{
			SessionID: r.SessionID,
			Action:    matched[0],
			Timestamp: r.Timestamp,
			Ark:       r.Ark,
		})
	}
	return events, nil
}
