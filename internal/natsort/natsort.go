// Package natsort implements natural string ordering, where runs of
// digits compare by numeric value instead of character by character,
// so "file2" sorts before "file10".
package natsort

import (
	"slices"
	"strings"
)

// Compare returns -1, 0, or 1 depending on whether a orders before,
// equal to, or after b.
//
// Both strings are split into alternating runs of digits and
// non-digits. Corresponding runs are compared pairwise: digit runs by
// numeric magnitude (arbitrary length, leading zeros ignored for
// magnitude but breaking ties so that "01" orders before "1"),
// everything else bytewise. If one run sequence is a prefix of the
// other, the shorter string orders first. The result is a total order
// usable as a general sort key.
func Compare(a, b string) int {
	for a != "" && b != "" {
		ra, restA := nextRun(a)
		rb, restB := nextRun(b)

		var c int
		if isDigits(ra) && isDigits(rb) {
			c = compareDigitRuns(ra, rb)
		} else {
			c = strings.Compare(ra, rb)
		}
		if c != 0 {
			return c
		}
		a, b = restA, restB
	}

	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

// Less reports whether a orders before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts ss in natural order, in place.
func Sort(ss []string) {
	slices.SortFunc(ss, Compare)
}

// nextRun splits off the leading run of digits or non-digits.
func nextRun(s string) (run, rest string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isDigits(s string) bool {
	return s != "" && isDigit(s[0])
}

// compareDigitRuns compares two all-digit runs by numeric magnitude.
// Equal magnitudes are tie-broken by the number of leading zeros, more
// zeros first, so the order stays antisymmetric for distinct runs.
func compareDigitRuns(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")

	// A longer digit string (after stripping zeros) is a bigger number.
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}

	zerosA := len(a) - len(ta)
	zerosB := len(b) - len(tb)
	switch {
	case zerosA > zerosB:
		return -1
	case zerosA < zerosB:
		return 1
	default:
		return 0
	}
}
