package locator

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/vtmqa/vtmsmoke/webdriver"
)

// Selector is one element-selection expression.
type Selector struct {
	By    string
	Value string
}

// CSS returns a CSS selector.
func CSS(value string) Selector {
	return Selector{By: webdriver.ByCSSSelector, Value: value}
}

// XPath returns an XPath selector.
func XPath(value string) Selector {
	return Selector{By: webdriver.ByXPATH, Value: value}
}

func (s Selector) String() string {
	return s.By + "=" + s.Value
}

var (
	lower = cases.Lower(language.Czech)
	upper = cases.Upper(language.Czech)
)

// HasText selects tag elements whose whitespace-normalized text contains
// text, ignoring case. Czech letters fold like their ASCII counterparts.
func HasText(tag, text string) Selector {
	needle := lower.String(norm.NFC.String(strings.Join(strings.Fields(text), " ")))

	var from, to strings.Builder
	seen := make(map[rune]bool)
	for _, r := range needle {
		if seen[r] {
			continue
		}
		seen[r] = true
		u := []rune(upper.String(string(r)))
		if len(u) != 1 || u[0] == r {
			continue
		}
		from.WriteRune(u[0])
		to.WriteRune(r)
	}

	if tag == "" {
		tag = "*"
	}
	if from.Len() == 0 {
		return XPath(fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", tag, xpathLiteral(needle)))
	}
	return XPath(fmt.Sprintf("//%s[contains(translate(normalize-space(.), %s, %s), %s)]",
		tag, xpathLiteral(from.String()), xpathLiteral(to.String()), xpathLiteral(needle)))
}

// xpathLiteral quotes s as an XPath 1.0 string literal, which has no escapes.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
