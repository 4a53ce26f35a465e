package resolver

import (
	"regexp"
	"sort"
	"strings"

	"docrag/internal/domain"
)

// minTokenOverlap is the share of query tokens a name must contain to match.
const minTokenOverlap = 0.5

var (
	knownExtension = regexp.MustCompile(`(?i)\.(docx|pdf|txt|md|csv)$`)
	separators     = strings.NewReplacer("_", " ", "-", " ", "(", " ", ")", " ", "[", " ", "]", " ")
)

// Normalize reduces a document name to lowercase space-separated words
// without a known file extension.
func Normalize(name string) string {
	name = knownExtension.ReplaceAllString(name, "")
	name = strings.ToLower(name)
	name = separators.Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// Matches reports whether a user-supplied name refers to candidate. Either
// normalized name may contain the other, or at least half of the query's
// words must appear in the candidate.
func Matches(query, candidate string) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	c := Normalize(candidate)
	if c != "" && (strings.Contains(c, q) || strings.Contains(q, c)) {
		return true
	}

	queryTokens := uniqueTokens(q)
	candTokens := uniqueTokens(c)
	common := 0
	for tok := range queryTokens {
		if _, ok := candTokens[tok]; ok {
			common++
		}
	}
	return common > 0 && float64(common)/float64(len(queryTokens)) >= minTokenOverlap
}

func uniqueTokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// Resolve returns the ids of every document whose name matches query,
// ordered by name then id. No match yields a *domain.NotFoundError listing
// all known names.
func Resolve(query string, docs []domain.Document) ([]string, error) {
	sorted := append([]domain.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})

	var ids []string
	for _, d := range sorted {
		if Matches(query, d.Name) {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}

	names := make([]string, len(sorted))
	for i, d := range sorted {
		names[i] = d.Name
	}
	return nil, &domain.NotFoundError{Query: query, Available: names}
}
