package websearch

import (
	"net/url"
	"strings"
)

// maxCitations caps the number of links appended to an answer.
const maxCitations = 3

// AppendSources appends a trailing "Sources:" line built from the search
// results used for the answer. Links are deduplicated in first-seen order,
// restricted to well-formed http(s) URLs and capped at maxCitations. If the
// answer already carries its own sources line, nothing is appended.
func AppendSources(answer string, results []Result) string {
	if len(results) == 0 {
		return answer
	}
	if strings.Contains(strings.ToLower(answer), "sources:") {
		return answer
	}

	seen := make(map[string]bool)
	var links []string
	for _, r := range results {
		if len(links) >= maxCitations {
			break
		}
		link := strings.TrimSpace(r.URL)
		if link == "" || seen[link] || !validLink(link) {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	if len(links) == 0 {
		return answer
	}
	return answer + "\n\nSources: " + strings.Join(links, " ")
}

func validLink(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
