package websearch

import "regexp"

// Explicit user instructions always win over the recency heuristics.
var (
	explicitDisableRe = regexp.MustCompile(`(?i)\b(no|don't|do not|without|skip( the)?)\s+(web\s*)?search`)
	explicitEnableRe  = regexp.MustCompile(`(?i)\b(search( the)?( web| online| internet)?\b|look (it |this )?up|google (it|for|this)?\b)`)
)

// Patterns whose presence suggests the answer depends on current facts.
var recencyRe = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(today|tonight|yesterday|right now|currently|latest|recent(ly)?|this (week|month|year))\b`),
	regexp.MustCompile(`(?i)\bprice of\b`),
	regexp.MustCompile(`(?i)\bstock price\b`),
	regexp.MustCompile(`(?i)\bweather\b`),
	regexp.MustCompile(`(?i)\b(score|scores)\b`),
	regexp.MustCompile(`(?i)\belection\b`),
	regexp.MustCompile(`(?i)\bnews\b`),
	regexp.MustCompile(`(?i)\bwho is the (current )?(president|prime minister|governor|mayor|ceo|chancellor)\b`),
}

// ShouldSearch decides whether a message needs a web search. An explicit
// instruction either way takes precedence; absent one, the recency patterns
// decide.
func ShouldSearch(text string) bool {
	if explicitDisableRe.MatchString(text) {
		return false
	}
	if explicitEnableRe.MatchString(text) {
		return true
	}
	for _, re := range recencyRe {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
