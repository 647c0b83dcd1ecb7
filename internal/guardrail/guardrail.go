// Package guardrail decides whether a question may be answered at all. It
// refuses requests for legal judgements, recommended actions and policy
// interpretation before any retrieval happens.
package guardrail

import (
	"regexp"
	"strings"
)

// Category names the kind of request that caused a refusal.
type Category string

const (
	CategoryNone                 Category = ""
	CategoryLegalJudgement       Category = "legal_judgement"
	CategoryRecommendedAction    Category = "recommended_action"
	CategoryPolicyInterpretation Category = "policy_interpretation"
)

// RefusalReason is returned for every refused question.
const RefusalReason = "Cannot provide legal advice, compliance decisions, or action recommendations."

const refusalPrefix = "This navigator cannot provide legal advice, compliance decisions, or action recommendations."

// Decision is the outcome of Evaluate. Matches lists every category whose
// rules fired, in declaration order; Category is the first of them.
type Decision struct {
	Allowed  bool       `json:"allowed"`
	Category Category   `json:"category,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Matches  []Category `json:"matches,omitempty"`
	Rules    []string   `json:"rules,omitempty"`
}

type rule struct {
	name     string
	category Category
	pattern  *regexp.Regexp
}

// rules are grouped by category; group order decides the reported category
// when several fire.
var rules = []rule{
	{"is-x-lawful", CategoryLegalJudgement, regexp.MustCompile(`\bis (this|it|that|our|my|the|their)\b[^?]*\b(lawful|legal|illegal|unlawful|compliant|non-compliant|permitted|allowed|permissible)(\s+(under|with|according to|in terms of|for)\b[^?]*)?\s*\??\s*$`)},
	{"is-this-lawful-prefix", CategoryLegalJudgement, regexp.MustCompile(`^is (this|it|that|our \w+|my \w+) (lawful|legal|illegal|unlawful|compliant|permitted|allowed)\b`)},
	{"is-it-legal-to", CategoryLegalJudgement, regexp.MustCompile(`\bis it (legal|lawful|illegal|unlawful|ok|okay|permitted|allowed|acceptable|permissible) (for|to)\b`)},
	{"are-we-compliant", CategoryLegalJudgement, regexp.MustCompile(`\b(are|am) (we|i)\b[^?]*\b(compliant|non-compliant|in breach|breaching|liable|legal|lawful)\b`)},
	{"can-we-legally", CategoryLegalJudgement, regexp.MustCompile(`\b(can|could|may) (we|i)\b[^?]*\b(legally|lawfully)\b`)},
	{"would-this-breach", CategoryLegalJudgement, regexp.MustCompile(`\bwould (this|it|that|we|i)\b[^?]*\b(breach|violate|infringe|comply|be (lawful|legal|unlawful|illegal|compliant))\b`)},
	{"do-we-comply", CategoryLegalJudgement, regexp.MustCompile(`(^|[,;:] |\band )(do|does) (we|i|our \w+|my \w+) (comply|meet the requirements)\b`)},
	{"legal-advice", CategoryLegalJudgement, regexp.MustCompile(`\b(legal advice|legal opinion|compliance (decision|determination|judgement|judgment|sign[- ]off|assessment))\b`)},
	{"will-we-be-fined", CategoryLegalJudgement, regexp.MustCompile(`\b(will|would|could|might) (we|i) (be|get) (fined|sued|liable|penali[sz]ed|prosecuted|in trouble)\b`)},

	{"should-we", CategoryRecommendedAction, regexp.MustCompile(`^(should|shall|must|ought) (we|i)\b`)},
	{"what-should", CategoryRecommendedAction, regexp.MustCompile(`\bwhat should (we|i|my|our|the)\b`)},
	{"can-you-recommend", CategoryRecommendedAction, regexp.MustCompile(`\b(do|would|can|could|will) you (recommend|advise|suggest)\b`)},
	{"your-recommendation", CategoryRecommendedAction, regexp.MustCompile(`\b(your|a) (recommendation|advice)\b`)},
	{"what-must-we-do", CategoryRecommendedAction, regexp.MustCompile(`\bwhat (do|must|would) (we|i) (need to |have to )?do\b`)},
	{"give-me-steps", CategoryRecommendedAction, regexp.MustCompile(`\b(give|tell|show|list) (me|us)\b[^?]*\b(steps|plan|checklist|roadmap|actions?|what to do)\b`)},
	{"steps-to-become", CategoryRecommendedAction, regexp.MustCompile(`\bsteps (to|for) (become|becoming|be|get|getting|achieve|achieving|ensure|ensuring|reach|reaching)\b`)},
	{"how-become-compliant", CategoryRecommendedAction, regexp.MustCompile(`\bhow (do|can|should|could) (we|i) (become|get|stay|be|remain|make sure we are|ensure we are)\b[^?]*\bcompliant\b`)},
	{"make-us-compliant", CategoryRecommendedAction, regexp.MustCompile(`\bmake (us|me|our \w+|my \w+) compliant\b`)},
	{"best-course", CategoryRecommendedAction, regexp.MustCompile(`\b(best|right) (course of action|next steps?|option for (us|me))\b`)},
	{"which-should-we-use", CategoryRecommendedAction, regexp.MustCompile(`\bwhich\b[^?]*\bshould (we|i) (use|choose|pick|rely on|select)\b`)},

	{"interpret", CategoryPolicyInterpretation, regexp.MustCompile(`\b(interpret|interpretation|interpreting|interpreted|construe)\b`)},
	{"what-does-really-mean", CategoryPolicyInterpretation, regexp.MustCompile(`\bwhat (does|do)\b[^?]*\b(really|actually) mean\b`)},
	{"what-does-mean-for-us", CategoryPolicyInterpretation, regexp.MustCompile(`\bwhat (does|do)\b[^?]*\bmean\b[^?]*\b(for (us|me|our|my)|in (our|my) (case|situation|circumstances|context)|in practice for)\b`)},
	{"how-should-we-read", CategoryPolicyInterpretation, regexp.MustCompile(`\bhow (should|would|do) (we|i|you) (read|understand)\b`)},
	{"does-it-apply-to-us", CategoryPolicyInterpretation, regexp.MustCompile(`\b(does|do)\b[^?]*\b(apply|applies) to (us|me|our|my)\b`)},
	{"does-this-count", CategoryPolicyInterpretation, regexp.MustCompile(`\bdoes (this|it|that|our \w+|my \w+) (apply|count|qualify)\b`)},
	{"in-our-case", CategoryPolicyInterpretation, regexp.MustCompile(`\bin (our|my) (case|situation|circumstances|context)\b`)},
	{"applies-to-our-org", CategoryPolicyInterpretation, regexp.MustCompile(`\b(applies|apply) to (our|my) (organisation|organization|company|business|charity|situation|case)\b`)},
}

// Evaluate classifies a raw question. It is pure: the same input always gives
// the same Decision. Every rule is checked so that Matches and Rules are
// complete.
func Evaluate(raw string) Decision {
	text := normalize(raw)
	var d Decision
	for _, r := range rules {
		if !r.pattern.MatchString(text) {
			continue
		}
		d.Rules = append(d.Rules, r.name)
		if len(d.Matches) == 0 || d.Matches[len(d.Matches)-1] != r.category {
			d.Matches = append(d.Matches, r.category)
		}
	}
	if len(d.Matches) == 0 {
		d.Allowed = true
		return d
	}
	d.Category = d.Matches[0]
	d.Reason = RefusalReason
	return d
}

// Summary is the user-facing refusal text for a refused decision.
func (d Decision) Summary() string {
	if d.Allowed {
		return ""
	}
	return refusalPrefix + " " + categoryExplanation(d.Category)
}

// Limitations lists the notes attached to a refusal.
func (d Decision) Limitations() []string {
	if d.Allowed {
		return []string{}
	}
	return []string{
		RefusalReason,
		"Refusal category: " + string(d.Category) + ".",
		`Rephrase the question to ask what the ICO guidance says, for example "What does the guidance say about records of processing activities?"`,
	}
}

func categoryExplanation(c Category) string {
	switch c {
	case CategoryLegalJudgement:
		return "The question asks for a judgement on whether something is lawful or compliant, which only a qualified adviser or the ICO can give."
	case CategoryRecommendedAction:
		return "The question asks what action to take, and this tool only points to sections of the published guidance."
	case CategoryPolicyInterpretation:
		return "The question asks how the rules should be interpreted or applied to a situation, which extractive search cannot support."
	default:
		return "The question falls outside what extractive guidance search can support."
	}
}

// normalize lower-cases, straightens quotes and collapses whitespace.
func normalize(raw string) string {
	s := strings.ToLower(raw)
	s = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`).Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
