package portal

import (
	"regexp"
	"strings"
)

const minTokenLength = 50

var (
	tokenInputPattern    = regexp.MustCompile(`<input[^>]*name="__RequestVerificationToken"[^>]*value="([^"]+)"[^>]*/>`)
	tokenFallbackPattern = regexp.MustCompile(`__RequestVerificationToken['"]\s*value=['"]([^'"]+)['"]`)
)

// ExtractVerificationToken finds the anti-forgery token on the login page.
// The page also references the client-side getAntiForgeryToken helper by
// name, so short or helper-like values are skipped. The looser fallback
// pattern only rejects helper references. Returns "" when nothing is found.
func ExtractVerificationToken(html string) string {
	for _, m := range tokenInputPattern.FindAllStringSubmatch(html, -1) {
		if plausibleToken(m[1]) {
			return m[1]
		}
	}

	for _, m := range tokenFallbackPattern.FindAllStringSubmatch(html, -1) {
		if !isHelperReference(m[1]) {
			return m[1]
		}
	}

	return ""
}

func plausibleToken(v string) bool {
	return !isHelperReference(v) && len(v) >= minTokenLength
}

func isHelperReference(v string) bool {
	return strings.Contains(v, "getAntiForgeryToken")
}
