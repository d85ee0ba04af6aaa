// Package classify assigns every parsed request exactly one coarse action
// category and extracts the category-specific parameters (Ark document
// identifier, document-action tokens, page number, page mode).
//
// The cascade is an ordered list of (category, predicate) pairs. All
// predicates are evaluated for every record and the result must name exactly
// one category; anything else is a cascade defect and fails the chunk rather
// than being silently resolved.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dhlab/gallicanav/internal/model"
)

// TokenSentinel marks a document request whose endpoint carried no
// dot-delimited action tokens.
const TokenSentinel = "-"

var (
	arkRE  = regexp.MustCompile(`12148/([A-Za-z0-9]+)`)
	pageRE = regexp.MustCompile(`f(\d+)`)
)

// docVocabulary is the known set of valid page/document qualifiers. Document
// requests whose token set does not intersect it are malformed URLs and are
// treated as noise, not errors.
var docVocabulary = map[string]struct{}{
	"r": {}, "rk": {}, "item": {}, "zoom": {},
	"planchecontact": {}, "vertical": {}, "double": {},
	"-": {}, "--": {},
}

// servicesExceptions are third-segment values that promote a /services/
// request out of the generic services bucket (they match a more specific
// category instead).
var servicesExceptions = map[string]struct{}{
	"search": {}, "pagination": {}, "action": {}, "mode": {},
}

// endpointParts is the normalized view of an endpoint the cascade predicates
// run against: the slash-stripped path, its first four segments, and the
// radical (segments joined, truncated after "ark:").
type endpointParts struct {
	path    string
	seg     [4]string
	radical string
}

func splitEndpoint(endpoint string) endpointParts {
	p := endpointParts{path: strings.TrimLeft(endpoint, "/")}
	if p.path != "" {
		segs := strings.SplitN(p.path, "/", 5)
		for i := 0; i < 4 && i < len(segs); i++ {
			p.seg[i] = segs[i]
		}
	}
	radical := p.seg[0] + "/" + p.seg[1] + "/" + p.seg[2] + "/" + p.seg[3]
	if radical == "///" {
		radical = ""
	}
	if i := strings.Index(radical, "ark:"); i >= 0 {
		radical = radical[:i+len("ark:")]
	}
	p.radical = radical
	return p
}

func (p endpointParts) isDownload() bool {
	return (strings.Contains(p.path, "download") && p.seg[0] == "ark:") ||
		strings.Contains(p.path, "services/ajax/action/download/")
}

func (p endpointParts) isSearch() bool {
	return strings.Contains(p.radical, "services/engine/search")
}

func (p endpointParts) searchRefinement() bool {
	return strings.Contains(p.path, "subsearch") || strings.Contains(p.path, "restrictedSearch")
}

// rules is the ordered cascade. Predicates are written so the categories are
// mutually exclusive; the assertion in Classify guards that property against
// regressions.
var rules = []struct {
	category model.Category
	match    func(endpointParts) bool
}{
	{model.CategoryHomepage, func(p endpointParts) bool {
		return p.path == ""
	}},
	{model.CategoryDocumentDownload, func(p endpointParts) bool {
		return p.isDownload() && strings.Contains(p.path, "services/ajax/action/download")
	}},
	{model.CategoryPageDownload, func(p endpointParts) bool {
		return p.isDownload() && strings.HasSuffix(p.path, "download=1")
	}},
	{model.CategoryDocument, func(p endpointParts) bool {
		return p.seg[0] == "ark:" && !p.isDownload()
	}},
	{model.CategoryIIIF, func(p endpointParts) bool {
		return p.seg[0] == "iiif"
	}},
	{model.CategoryStaticAsset, func(p endpointParts) bool {
		return (p.seg[0] == "assets" || p.seg[0] == "html") && p.seg[1] != "und"
	}},
	{model.CategoryBlog, func(p endpointParts) bool {
		return p.seg[0] == "blog"
	}},
	{model.CategoryServices, func(p endpointParts) bool {
		if p.seg[0] != "services" {
			return false
		}
		_, excepted := servicesExceptions[p.seg[2]]
		return !excepted
	}},
	{model.CategorySimpleSearch, func(p endpointParts) bool {
		return p.isSearch() && !strings.Contains(p.path, "advancedSearch") && !p.searchRefinement()
	}},
	{model.CategoryAdvancedSearch, func(p endpointParts) bool {
		return p.isSearch() && strings.Contains(p.path, "advancedSearch")
	}},
	{model.CategoryFilteringSearch, func(p endpointParts) bool {
		return p.isSearch() && p.searchRefinement()
	}},
	{model.CategoryPagination, func(p endpointParts) bool {
		return strings.Contains(p.path, "services/ajax/pagination")
	}},
	{model.CategoryMode, func(p endpointParts) bool {
		return strings.Contains(p.radical, "services/ajax/mode") && !strings.Contains(p.path, "zoom")
	}},
	{model.CategoryZoom, func(p endpointParts) bool {
		return strings.Contains(p.radical, "services/ajax/mode") && strings.Contains(p.path, "zoom")
	}},
	{model.CategoryHeading, func(p endpointParts) bool {
		return p.seg[0] == "html" && p.seg[1] == "und"
	}},
}

// ExclusivityError reports a record that matched zero or more than one
// category. It aborts the chunk: the cascade itself is broken, not the data.
type ExclusivityError struct {
	RecordID string
	Matched  []model.Category
}

func (e *ExclusivityError) Error() string {
	return fmt.Sprintf("classification not exclusive for %s: %d categories %v",
		e.RecordID, len(e.Matched), e.Matched)
}

// Classify assigns the single category for req and extracts its parameters.
// It returns an *ExclusivityError when the cascade matches zero or more than
// one category.
func Classify(req model.ParsedRequest) (model.ClassifiedRequest, error) {
	p := splitEndpoint(req.Endpoint)

	var matched []model.Category
	for _, r := range rules {
		if r.match(p) {
			matched = append(matched, r.category)
		}
	}

	rec := model.ClassifiedRequest{
		ParsedRequest: req,
		Ark:           ExtractArk(req.Endpoint),
		PageNumber:    model.NoPage,
	}
	if len(matched) != 1 {
		return rec, &ExclusivityError{RecordID: rec.RecordID(), Matched: matched}
	}
	rec.Category = matched[0]

	switch rec.Category {
	case model.CategoryDocument:
		rec.DocTokens = extractTokens(p.path)
		rec.PageNumber = extractPage(p.path)
	case model.CategoryPagination:
		rec.PageNumber = extractPage(p.path)
	case model.CategoryMode:
		rec.Mode = p.seg[3]
	}
	return rec, nil
}

// IsNoise reports whether a classified document request should be discarded
// because none of its action tokens belongs to the known vocabulary.
// Non-document requests are never noise.
func IsNoise(rec model.ClassifiedRequest) bool {
	if rec.Category != model.CategoryDocument {
		return false
	}
	for _, tok := range rec.DocTokens {
		if _, ok := docVocabulary[tok]; ok {
			return false
		}
	}
	return true
}

// CanonicalTokens drops the sentinel-only token set so "no tokens" is an
// explicit absence in the output rather than a fake value.
func CanonicalTokens(tokens []string) []string {
	if len(tokens) == 1 && tokens[0] == TokenSentinel {
		return nil
	}
	return tokens
}

// ExtractArk pulls the Ark-style persistent document identifier out of an
// endpoint path, or "" when the path carries none.
func ExtractArk(endpoint string) string {
	m := arkRE.FindStringSubmatch(endpoint)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractTokens collects the dot-delimited action keywords embedded in a
// document path: each run after a '.' up to the next '.', '=', '?' or end of
// string. A run terminated by '%' is an escape artifact and is skipped.
// Mirrors the original lookahead pattern, which RE2 cannot express.
func extractTokens(path string) []string {
	seen := make(map[string]struct{})
	for i := 0; i < len(path); i++ {
		if path[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(path) && !isTokenTerminator(path[j]) && path[j] != '%' {
			j++
		}
		if j < len(path) && path[j] == '%' {
			i = j
			continue
		}
		seen[path[i+1:j]] = struct{}{}
		// The terminator is not consumed: a '.' terminator starts the next token.
		i = j - 1
	}
	if len(seen) == 0 {
		return []string{TokenSentinel}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func isTokenTerminator(c byte) bool {
	return c == '.' || c == '=' || c == '?'
}

// extractPage parses the first fNNN folio token in the path, or NoPage.
func extractPage(path string) int {
	m := pageRE.FindStringSubmatch(path)
	if m == nil {
		return model.NoPage
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return model.NoPage
	}
	return n
}
