package scenario

import (
	"context"
	"fmt"

	"github.com/vtmqa/vtmsmoke/internal/browser"
	"github.com/vtmqa/vtmsmoke/internal/config"
	"github.com/vtmqa/vtmsmoke/internal/locator"
	"github.com/vtmqa/vtmsmoke/webdriver"
)

// Check names as they appear in the result log.
const (
	TitleCheck      = "Ověření názvu stránky"
	LogoCheck       = "Ověření loga"
	MenuCheckPrefix = "Test odkazu: "
	ArticleCheck    = "Otevření článku"
	SearchCheck     = "Vyhledávání"
)

// Suite returns the vtm.zive.cz checks in the order they run.
func Suite(site config.SiteConfig) []Scenario {
	return []Scenario{
		{Name: "title", Checks: []Check{PageTitle(site)}},
		{Name: "logo", Checks: []Check{Logo(site)}},
		MainMenu(site),
		{Name: "article", Checks: []Check{OpenArticle(site)}},
		{Name: "search", Checks: []Check{Search(site)}},
	}
}

// openHome loads the home page, clears the consent dialog and waits for state.
func openHome(ctx context.Context, s *browser.Session, site config.SiteConfig, state browser.LoadState) error {
	if err := s.Navigate(ctx, site.HomeURL); err != nil {
		return err
	}
	if err := s.DismissConsent(ctx); err != nil {
		return err
	}
	return s.WaitForLoad(ctx, state)
}

// PageTitle checks the exact document title of the home page.
func PageTitle(site config.SiteConfig) Check {
	return Check{
		Name: TitleCheck,
		Run: func(ctx context.Context, s *browser.Session) (Verdict, error) {
			if err := openHome(ctx, s, site, browser.Load); err != nil {
				return Verdict{}, err
			}
			title, err := s.Title()
			if err != nil {
				return Verdict{}, err
			}
			if title != site.Title {
				return Fail("title is %q, want %q", title, site.Title), nil
			}
			return Pass("title %q", title), nil
		},
	}
}

// Logo checks that a logo carrying the brand token is displayed.
func Logo(site config.SiteConfig) Check {
	return Check{
		Name: LogoCheck,
		Run: func(ctx context.Context, s *browser.Session) (Verdict, error) {
			if err := openHome(ctx, s, site, browser.Load); err != nil {
				return Verdict{}, err
			}
			candidates := LogoCandidates(site.LogoToken)
			m, found, err := s.Find(ctx, candidates, s.Config().Timeouts.Action)
			if err != nil {
				return Verdict{}, err
			}
			if !found {
				return Fail("no visible logo among %d candidate selectors", len(candidates)), nil
			}
			return Pass("logo at %s", m.Selector), nil
		},
	}
}

// MainMenu checks every configured header link on its own. The scenario
// summary is printed only when all of them lead where they should.
func MainMenu(site config.SiteConfig) Scenario {
	sc := Scenario{Name: "main menu", Summary: "Main menu works"}
	for _, link := range site.MenuLinks {
		sc.Checks = append(sc.Checks, menuLink(site, link))
	}
	return sc
}

func menuLink(site config.SiteConfig, link config.MenuLink) Check {
	return Check{
		Name: MenuCheckPrefix + link.Text,
		Run: func(ctx context.Context, s *browser.Session) (Verdict, error) {
			if err := openHome(ctx, s, site, browser.NetworkIdle); err != nil {
				return Verdict{}, err
			}
			// Some menus only render their links once the header is hovered.
			if err := s.Hover(ctx, Header); err != nil {
				return Verdict{}, err
			}
			m, found, err := s.Find(ctx, []locator.Selector{MenuLink(link.Text)}, 0)
			if err != nil {
				return Verdict{}, err
			}
			if !found {
				return Fail("link %q is not visible", link.Text), nil
			}
			if err := s.ScrollIntoView(m.Element); err != nil {
				return Verdict{}, err
			}
			if err := s.ExpectNavigation(ctx, m.Element.Click); err != nil {
				return Verdict{}, err
			}
			if err := s.WaitForLoad(ctx, browser.Load); err != nil {
				return Verdict{}, err
			}
			url, err := s.CurrentURL()
			if err != nil {
				return Verdict{}, err
			}
			if url != link.URL {
				return Fail("link %q led to %s, want %s", link.Text, url, link.URL), nil
			}
			return Pass("link %q led to %s", link.Text, url), nil
		},
	}
}

// OpenArticle clicks the first article link and checks that it left the
// home page.
func OpenArticle(site config.SiteConfig) Check {
	return Check{
		Name: ArticleCheck,
		Run: func(ctx context.Context, s *browser.Session) (Verdict, error) {
			if err := openHome(ctx, s, site, browser.Load); err != nil {
				return Verdict{}, err
			}
			link, err := s.WaitVisible(ctx, ArticleLink)
			if err != nil {
				return Verdict{}, err
			}
			if err := s.ExpectNavigation(ctx, link.Click); err != nil {
				return Verdict{}, err
			}
			if err := s.WaitForLoad(ctx, browser.Load); err != nil {
				return Verdict{}, err
			}
			url, err := s.CurrentURL()
			if err != nil {
				return Verdict{}, err
			}
			if url == site.HomeURL {
				return Fail("still on %s after clicking the article link", url), nil
			}
			return Pass("opened %s", url), nil
		},
	}
}

// Search opens the search box, submits the configured term and expects at
// least one result.
func Search(site config.SiteConfig) Check {
	return Check{
		Name: SearchCheck,
		Run: func(ctx context.Context, s *browser.Session) (Verdict, error) {
			if err := openHome(ctx, s, site, browser.Load); err != nil {
				return Verdict{}, err
			}
			m, found, err := s.Find(ctx, SearchToggles(), s.Config().Timeouts.Candidate)
			if err != nil {
				return Verdict{}, err
			}
			if !found {
				return Fail("no visible search control"), nil
			}
			if err := m.Element.Click(); err != nil {
				return Verdict{}, fmt.Errorf("opening search: %w", err)
			}

			input, err := s.WaitVisible(ctx, SearchInput)
			if err != nil {
				return Verdict{}, err
			}
			if err := input.Clear(); err != nil {
				return Verdict{}, err
			}
			if err := input.SendKeys(site.SearchTerm); err != nil {
				return Verdict{}, err
			}
			if err := input.SendKeys(webdriver.EnterKey); err != nil {
				return Verdict{}, err
			}

			if _, err := s.WaitVisible(ctx, SearchResult); err != nil {
				return Verdict{}, err
			}
			results, err := s.Driver().FindElements(SearchResult.By, SearchResult.Value)
			if err != nil {
				return Verdict{}, err
			}
			if len(results) == 0 {
				return Fail("no results for %q", site.SearchTerm), nil
			}
			return Pass("%d results for %q", len(results), site.SearchTerm), nil
		},
	}
}
