package guardrail

import "regexp"

var advicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(we|i) (would )?(recommend|advise|suggest)\b`),
	regexp.MustCompile(`(?i)\bmy (advice|recommendation)\b`),
	regexp.MustCompile(`(?i)\bit is (recommended|advisable) that you\b`),
	regexp.MustCompile(`(?i)\byou are (compliant|non-compliant|in breach|not compliant)\b`),
	regexp.MustCompile(`(?i)\b(this|your processing|your organisation|your organization) is (lawful|unlawful|legal|illegal|compliant|non-compliant)\b`),
	regexp.MustCompile(`(?i)\bthe best (option|approach|course of action) (is|would be)\b`),
	regexp.MustCompile(`(?i)\byour next steps? (is|are|should be)\b`),
}

var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(provided|given|supplied) (passages|text|extracts|context) (do|does) not (contain|include|provide|answer)\b`),
	regexp.MustCompile(`(?i)\b(do|does) not contain an answer\b`),
	regexp.MustCompile(`(?i)\b(i cannot|i can't|i can not|i am unable to|i'm unable to) (answer|help|provide|assist)\b`),
	regexp.MustCompile(`(?i)\bas an ai\b`),
	regexp.MustCompile(`(?i)\b(not enough|insufficient) (information|context)\b`),
	regexp.MustCompile(`(?i)\bno (relevant )?information (is )?(available|provided)\b`),
}

// ScanAdvice reports whether text phrases itself as advice or a compliance
// judgement. Generated summaries that do are discarded.
func ScanAdvice(text string) bool {
	return matchAny(advicePatterns, text)
}

// ScanRefusal reports whether text is a refusal or "cannot answer" reply
// rather than a summary.
func ScanRefusal(text string) bool {
	return matchAny(refusalPatterns, text)
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
