package apptwin

import (
	"regexp"
	"strings"
)

// Feature categories the twin's analyzer counts.
const (
	FeatureEmail      = "email"
	FeaturePhone      = "phone"
	FeatureURL        = "url"
	FeatureCreditCard = "credit_card"
)

var entityPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{FeatureEmail, regexp.MustCompile(`[a-zA-Z0-9_.+\-]+@[a-zA-Z0-9\-]+\.[a-zA-Z0-9.\-]+`)},
	{FeaturePhone, regexp.MustCompile(`(?:\+\d{1,2}\s)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)},
	{FeatureURL, regexp.MustCompile(`https?://(?:[\-\w.]|(?:%[\da-fA-F]{2}))+[/\w.\-]*(?:\?[\w=&.]+)?`)},
	{FeatureCreditCard, regexp.MustCompile(`\b(?:\d{4}[\- ]?){3}\d{4}\b`)},
}

// CountFeatures returns the number of distinct normalized entities of each
// category found in content. Categories with no match are omitted.
func CountFeatures(content string) map[string]int {
	out := make(map[string]int)
	for _, p := range entityPatterns {
		seen := make(map[string]struct{})
		for _, m := range p.re.FindAllString(content, -1) {
			if v, ok := normalizeEntity(p.name, m); ok {
				seen[v] = struct{}{}
			}
		}
		if len(seen) > 0 {
			out[p.name] = len(seen)
		}
	}
	return out
}

func normalizeEntity(kind, v string) (string, bool) {
	v = strings.TrimSpace(v)
	switch kind {
	case FeatureEmail:
		v = strings.ToLower(strings.TrimRight(v, "."))
	case FeaturePhone:
		v = digitsOnly(v)
		if len(v) < 10 {
			return "", false
		}
	case FeatureCreditCard:
		v = digitsOnly(v)
		if len(v) < 15 || len(v) > 16 {
			return "", false
		}
	}
	return v, v != ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
