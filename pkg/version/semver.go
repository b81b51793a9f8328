package version

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SemVer is a semantic version. MongoDB server versions ("7.0.5", "8.0.0-rc3") parse as one.
type SemVer struct {
	Major, Minor, Patch int64

	PreRelease string
	Build      string
}

// Parse parses a semantic version string, with or without a leading v.
func Parse(raw string) (SemVer, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return SemVer{}, errors.New("version cannot be empty")
	}

	var (
		v                SemVer
		hasBuild, hasPre bool
	)
	s, v.Build, hasBuild = strings.Cut(s, "+")
	s, v.PreRelease, hasPre = strings.Cut(s, "-")

	core := strings.Split(s, ".")
	if len(core) != 3 {
		return SemVer{}, fmt.Errorf("invalid semantic version %q: want major.minor.patch", raw)
	}
	for i, dst := range []*int64{&v.Major, &v.Minor, &v.Patch} {
		n, err := parseNumeric(core[i])
		if err != nil {
			return SemVer{}, fmt.Errorf("invalid semantic version %q: %w", raw, err)
		}
		*dst = n
	}

	if err := checkIdentifiers(v.PreRelease, true, hasPre); err != nil {
		return SemVer{}, fmt.Errorf("invalid prerelease in %q: %w", raw, err)
	}
	if err := checkIdentifiers(v.Build, false, hasBuild); err != nil {
		return SemVer{}, fmt.Errorf("invalid build metadata in %q: %w", raw, err)
	}
	return v, nil
}

func parseNumeric(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty numeric component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit in %q", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// checkIdentifiers validates a dot-separated prerelease or build list. present tells an
// empty list apart from a missing one, as in "1.0.0-".
func checkIdentifiers(list string, numericRule, present bool) error {
	if list == "" {
		if present {
			return errors.New("empty identifier list")
		}
		return nil
	}
	for _, id := range strings.Split(list, ".") {
		if id == "" {
			return errors.New("empty identifier")
		}
		numeric := true
		for _, r := range id {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
				numeric = false
			default:
				return fmt.Errorf("invalid character %q in %q", r, id)
			}
		}
		if numericRule && numeric && len(id) > 1 && id[0] == '0' {
			return fmt.Errorf("leading zero in %q", id)
		}
	}
	return nil
}

// MustParse is Parse that panics on error.
func MustParse(raw string) SemVer {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v SemVer) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		b.WriteString("-" + v.PreRelease)
	}
	if v.Build != "" {
		b.WriteString("+" + v.Build)
	}
	return b.String()
}

// Compare returns -1, 0 or 1 as v sorts before, with or after other. Build metadata is
// ignored and a pre-release sorts before its release.
func (v SemVer) Compare(other SemVer) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Patch, other.Patch); c != 0 {
		return c
	}
	return comparePreRelease(v.PreRelease, other.PreRelease)
}

// AtLeast reports whether v >= min.
func (v SemVer) AtLeast(min SemVer) bool {
	return v.Compare(min) >= 0
}

func comparePreRelease(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		// The release sorts after any of its pre-releases.
		return cmp.Compare(len(b), len(a))
	}

	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < min(len(as), len(bs)); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}

// compareIdentifier orders numeric identifiers numerically and before alphanumeric ones.
func compareIdentifier(a, b string) int {
	an, aErr := strconv.ParseInt(a, 10, 64)
	bn, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(an, bn)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
