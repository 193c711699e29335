package scenario

import (
	"fmt"

	"github.com/vtmqa/vtmsmoke/internal/locator"
)

var (
	Header       = locator.CSS("header")
	ArticleLink  = locator.CSS("article a")
	SearchInput  = locator.CSS("input[type='search']")
	SearchResult = locator.CSS(".search-result")
)

// LogoCandidates lists where the site logo may be, most specific first.
func LogoCandidates(token string) []locator.Selector {
	return []locator.Selector{
		locator.CSS(fmt.Sprintf("img[alt*='%s']", token)),
		locator.CSS(fmt.Sprintf("header [aria-label*='%s']", token)),
		locator.CSS("header a.logo img"),
	}
}

// MenuLink selects header links labelled text.
func MenuLink(text string) locator.Selector {
	return locator.HasText("a", text)
}

// SearchToggles lists the controls that open the search box. The site has
// shipped several of them over time.
func SearchToggles() []locator.Selector {
	return []locator.Selector{
		locator.HasText("button", "Vyhledávání"),
		locator.HasText("button", "Hledat"),
		locator.CSS("button[aria-label='Hledat']"),
		locator.CSS("button[aria-label='Vyhledávání']"),
		locator.CSS(".search-toggle"),
	}
}
