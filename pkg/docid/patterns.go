package docid

import (
	"regexp"
	"sort"
)

// Candidate doc ids are numeric tokens extracted from page markup and
// script bundles. The explicit patterns bind the token to a doc id
// context; the bare pattern is a wide net over long numeric literals and
// runs last. Longer matches are more likely to be current identifiers, so
// the deduplicated union is sorted longest first, with the pattern order
// as a stable tiebreak.
var extractionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"doc_id"\s*:\s*"(\d{15,25})"`),
	regexp.MustCompile(`doc_id["']?\s*[:=]\s*["']?(\d{15,25})`),
	regexp.MustCompile(`queryID["']?\s*[:=]\s*["'](\d{15,25})["']`),
	regexp.MustCompile(`"(\d{17,25})"`),
}

// scriptSrcPattern pulls the bundle URLs out of profile page markup so
// discovery can scan the bundles themselves.
var scriptSrcPattern = regexp.MustCompile(`<script[^>]+src="([^"]+\.js[^"]*)"`)

// extractCandidates scans one source text and returns the unique candidate
// ids, longest first.
func extractCandidates(source string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range extractionPatterns {
		for _, m := range pattern.FindAllStringSubmatch(source, -1) {
			id := m[1]
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sortByLengthDesc(out)
	return out
}

// extractScriptURLs returns the script bundle URLs referenced by a page.
func extractScriptURLs(source string) []string {
	matches := scriptSrcPattern.FindAllStringSubmatch(source, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		u := m[1]
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func sortByLengthDesc(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return len(ids[i]) > len(ids[j])
	})
}
