package classify

import "regexp"

// Patterns are matched case-insensitively against the whole prompt.
// ^ and $ anchor the prompt, not individual lines.
var codePatterns = compile(
	"```[a-z]*\\n",
	`function\s+\w+\s*\(`,
	`class\s+\w+`,
	`def\s+\w+\s*\(`,
	`import\s+\w+`,
	`from\s+\w+\s+import`,
	`const\s+\w+\s*=`,
	`let\s+\w+\s*=`,
	`var\s+\w+\s*=`,
	`public\s+\w+\s+\w+\(`,
	`#include`,
	`<script`,
	`<style`,
	`package\s+\w+`,
	`@\w+`,
	`SELECT\s+.*\s+FROM`,
	`CREATE\s+TABLE`,
	`\w+\s*\(\s*\)\s*\{`,
	`^\s*for\s*\(\s*\w+`,
	`^\s*if\s*\(\s*\w+`,
	`^\s*while\s*\(`,
	`\b(write|implement|code|refactor|debug)\s+(a|an|the|this|some)?\s*(\w+\s+)?(function|method|class|script|program|snippet|regex|query)\b`,
	`\bin\s+(python|javascript|typescript|golang|java|rust|ruby|php|kotlin|swift|sql|bash)\b|\bin\s+(c\+\+|c#)`,
)

var summaryPatterns = compile(
	`\bsummarize\b`,
	`\bsummary\b`,
	`\bsummarise\b`,
	`\bcondense\b`,
	`\brecap\b`,
	`\bshorten\b`,
	`\bsynthesize\b`,
	`\bsynopsis\b`,
	`\babbreviate\b`,
	`\bdigest\b`,
	`\btl;dr\b`,
	`\btldr\b`,
	`\bkey points\b`,
	`\bmain points\b`,
	`\bhighlight\b`,
	`\boverview\b`,
	`\bbriefing\b`,
)

var questionPatterns = compile(
	`\?\s*$`,
	`^what\b`,
	`^how\b`,
	`^why\b`,
	`^when\b`,
	`^where\b`,
	`^who\b`,
	`^can\b`,
	`^do\b`,
	`^is\b`,
	`^are\b`,
	`^could\b`,
	`^should\b`,
	`\bexplain\b`,
	`\belaborate\b`,
	`\bdiscuss\b`,
	`\bdescribe\b`,
	`\btell me\b`,
	`\bI need to know\b`,
)

// codeLikeSyntax is the zero-match fallback for bracket-dense text.
var codeLikeSyntax = regexp.MustCompile(`[{};()]`)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

func countMatches(patterns []*regexp.Regexp, prompt string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(prompt) {
			n++
		}
	}
	return n
}
