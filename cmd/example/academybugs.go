package main

import (
	"errors"

	"github.com/stretchr/testify/require"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

const academyBugsURL = "https://academybugs.com"

// AcademyBugs checks a practice shop with intentional bugs. The tests need a
// browser, they are skipped if no browser factory is configured.
func AcademyBugs() roamtech.TestSuite {
	return roamtech.TestSuite{
		Name: "academybugs",
		Tests: []roamtech.TestCase{
			{ID: "home-page-heading", Mode: roamtech.ModeInteractive, Func: HomePageHeading},
			{ID: "navigation-menu", Mode: roamtech.ModeInteractive, Func: NavigationMenu},
			{ID: "social-share-buttons", Mode: roamtech.ModeInteractive, Func: SocialShareButtons},
			{ID: "contact-form-fields", Mode: roamtech.ModeInteractive, Func: ContactFormFields},
			{ID: "contact-form-submit", Mode: roamtech.ModeInteractive, Func: ContactFormSubmit},
			{ID: "video-player", Mode: roamtech.ModeInteractive, Func: VideoPlayer},
			{ID: "articles-list", Mode: roamtech.ModeInteractive, Func: ArticlesList},
			{ID: "search-input", Mode: roamtech.ModeInteractive, Func: SearchInput},
			{ID: "search-results", Mode: roamtech.ModeInteractive, Func: SearchResults},
			{ID: "booking-form-fields", Mode: roamtech.ModeInteractive, Func: BookingFormFields},
			{ID: "booking-form-submit", Mode: roamtech.ModeInteractive, Func: BookingFormSubmit},
		},
	}
}

func browser(t roamtech.TB, path string) roamtech.Browser {
	t.Helper()

	b := t.Browser()
	if b == nil {
		t.Skip("no browser available")
	}

	require.NoError(t, b.Visit(t.Context(), academyBugsURL+path))

	return b
}

func mustLocate(t roamtech.TB, b roamtech.Browser, selector string) model.Element {
	t.Helper()

	el, err := b.Locate(t.Context(), selector)
	require.NoError(t, err)

	return el
}

func HomePageHeading(t roamtech.TB) {
	b := browser(t, "/")

	mustLocate(t, b, "h1")
}

func NavigationMenu(t roamtech.TB) {
	b := browser(t, "/")

	mustLocate(t, b, "nav")
}

func SocialShareButtons(t roamtech.TB) {
	b := browser(t, "/")

	share := mustLocate(t, b, `a[href*="facebook"], button[class*="facebook"], [class*="share"]`)

	require.NoError(t, b.Act(t.Context(), share, model.Action{Kind: "click"}))

	_, err := b.Locate(t.Context(), `body:contains("Error")`)

	var notFound model.ElementNotFoundError
	require.True(t, errors.As(err, &notFound), "clicking a share button should not show an error")
}

func ContactFormFields(t roamtech.TB) {
	b := browser(t, "/contact")

	mustLocate(t, b, `input[type="text"], input[name*="name"]`)
	mustLocate(t, b, `input[type="email"], input[name*="email"]`)
	mustLocate(t, b, `textarea, input[name*="message"]`)
}

func ContactFormSubmit(t roamtech.TB) {
	b := browser(t, "/contact")

	fields := []struct {
		selector string
		value    string
	}{
		{`input[type="text"], input[name*="name"]`, "Test User"},
		{`input[type="email"], input[name*="email"]`, "test@example.com"},
		{`textarea, input[name*="message"]`, "This is a test message"},
	}

	for _, f := range fields {
		el := mustLocate(t, b, f.selector)
		require.NoError(t, b.Act(t.Context(), el, model.Action{Kind: "type", Value: f.value}))
	}

	submit := mustLocate(t, b, `button[type="submit"], input[type="submit"]`)
	require.NoError(t, b.Act(t.Context(), submit, model.Action{Kind: "click"}))

	_, err := b.Locate(t.Context(), `body:contains("Error")`)

	var notFound model.ElementNotFoundError
	require.True(t, errors.As(err, &notFound), "submitting the contact form should not show an error")
}

func VideoPlayer(t roamtech.TB) {
	b := browser(t, "/videos")

	mustLocate(t, b, `video, iframe[src*="youtube"], iframe[src*="vimeo"]`)
}

func ArticlesList(t roamtech.TB) {
	b := browser(t, "/articles")

	mustLocate(t, b, `article, .article, [class*="post"]`)
}

const searchInput = `input[type="search"], input[placeholder*="Search"], [class*="search"] input`

func fill(t roamtech.TB, b roamtech.Browser, selector, value string) {
	t.Helper()

	el := mustLocate(t, b, selector)
	require.NoError(t, b.Act(t.Context(), el, model.Action{Kind: "type", Value: value}))
}

func click(t roamtech.TB, b roamtech.Browser, selector string) {
	t.Helper()

	el := mustLocate(t, b, selector)
	require.NoError(t, b.Act(t.Context(), el, model.Action{Kind: "click"}))
}

func SearchInput(t roamtech.TB) {
	b := browser(t, "/")

	fill(t, b, searchInput, "test search query")
	mustLocate(t, b, `button[class*="search"], button[type="submit"]`)
}

func SearchResults(t roamtech.TB) {
	b := browser(t, "/")

	fill(t, b, searchInput, "test")
	click(t, b, `button[type="submit"], button[class*="search"]`)

	mustLocate(t, b, `.results, [class*="search-results"]`)
}

func BookingFormFields(t roamtech.TB) {
	b := browser(t, "/booking")

	mustLocate(t, b, `input[type="date"], input[placeholder*="date"]`)
	mustLocate(t, b, `input[type="time"], select[name*="time"]`)
	mustLocate(t, b, `input[type="number"], select[name*="guest"]`)
}

func BookingFormSubmit(t roamtech.TB) {
	b := browser(t, "/booking")

	fill(t, b, `input[type="text"], input[name*="name"]`, "John Doe")
	fill(t, b, `input[type="email"]`, "john@example.com")
	fill(t, b, `input[type="tel"], input[name*="phone"]`, "1234567890")
	fill(t, b, `input[type="date"]`, "2025-12-31")
	fill(t, b, `input[type="number"], select[name*="guest"]`, "4")
	click(t, b, `button[type="submit"], input[type="submit"]`)

	mustLocate(t, b, `.success, [class*="success"]`)
}
