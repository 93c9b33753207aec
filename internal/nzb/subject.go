package nzb

import (
	"regexp"
	"strings"
	"unicode"
)

// Subject lines are free text written by posting tools, so filename
// recovery is heuristic. Each strategy is a pure function tried in
// order, most specific first; the first hit wins and a miss is a valid
// outcome, never an error.
type nameStrategy func(subject string) (string, bool)

var nameStrategies = []nameStrategy{
	quotedName,
	partCounterName,
	bareFilename,
}

var (
	// Filename in quotes, the dominant convention. The greedy capture
	// spans from the first quote to the last, so quote characters
	// inside the filename do not terminate the span early.
	quotedNameRe = regexp.MustCompile(`"(.*)"`)

	// [n/m] - NAME yEnc (i/j) size. Anchoring on the part counter and
	// the yEnc marker keeps release-group prefixes out of the capture.
	partCounterRe = regexp.MustCompile(`^(?:\[|\()(?:\d+/\d+)(?:\]|\))\s-\s(.*)\syEnc\s(?:\[|\()(?:\d+/\d+)(?:\]|\))\s\d+`)

	// Something that merely looks like a filename with an extension.
	bareFilenameRe = regexp.MustCompile(`\b([\w\-+()' .,]+(?:\[[\w\-/+()' .,]*][\w\-+()' .,]*)*\.[A-Za-z0-9]{2,4})\b`)

	extensionRe = regexp.MustCompile(`(?i)\.[a-z]\w{2,5}$`)
)

// extractName recovers a filename from a subject line, or returns ""
// when no strategy matches.
func extractName(subject string) string {
	for _, strat := range nameStrategies {
		if name, ok := strat(subject); ok {
			return name
		}
	}
	return ""
}

func quotedName(subject string) (string, bool) {
	return captureTrimmed(quotedNameRe, subject)
}

func partCounterName(subject string) (string, bool) {
	return captureTrimmed(partCounterRe, subject)
}

func bareFilename(subject string) (string, bool) {
	return captureTrimmed(bareFilenameRe, subject)
}

func captureTrimmed(re *regexp.Regexp, subject string) (string, bool) {
	m := re.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// splitExt splits a filename into stem and extension (without the
// dot). A name with no recognizable trailing extension, or one where
// the only dot is leading, keeps the full name as its stem and has no
// extension.
func splitExt(name string) (stem, ext string) {
	loc := extensionRe.FindStringIndex(name)
	if loc == nil || loc[0] == 0 {
		return name, ""
	}
	return name[:loc[0]], name[loc[0]+1:]
}

// isProbablyObfuscated reports whether a filename stem looks machine
// generated rather than human readable, following SABnzbd's
// deobfuscation heuristics: hash-like stems are obfuscated, and a stem
// is only considered clean when it shows clear signs of a deliberate
// name (case mixing, separators, a year-style digit group).
func isProbablyObfuscated(stem string) bool {
	if stem == "" {
		return true
	}

	if obfuscatedHexRe.MatchString(stem) || obfuscatedLongHexRe.MatchString(stem) || obfuscatedAbcXyzRe.MatchString(stem) {
		return true
	}

	var digits, uppers, lowers, separators int
	for _, r := range stem {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsUpper(r):
			uppers++
		case unicode.IsLower(r):
			lowers++
		case r == ' ' || r == '.' || r == '_':
			separators++
		}
	}

	switch {
	case uppers >= 2 && lowers >= 2 && separators >= 1:
		return false // "Great Distro"
	case separators >= 3:
		return false // "this is a download"
	case uppers+lowers >= 4 && digits >= 4 && separators >= 1:
		return false // "Beast 2020"
	}
	// "Catullus": starts with a capital, mostly lower case after it.
	first, _ := firstRune(stem)
	if unicode.IsUpper(first) && lowers > 2 && uppers <= lowers/4 {
		return false
	}
	return true
}

var (
	obfuscatedHexRe     = regexp.MustCompile(`^[a-f0-9]{32}$`)
	obfuscatedLongHexRe = regexp.MustCompile(`^[a-f0-9.]{40,}$`)
	obfuscatedAbcXyzRe  = regexp.MustCompile(`^abc\.xyz`)
)

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
