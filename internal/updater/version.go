package updater

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var digitRuns = regexp.MustCompile(`\d+`)

// versionKey is the ordering key shared by every version string: first
// whether it has any digits, then its numeric segments, then its semver
// prerelease. Keys compare field by field.
type versionKey struct {
	numbered   bool
	segments   []string
	prerelease string
}

func keyOf(version string) versionKey {
	version = strings.TrimSpace(version)
	if v, err := semver.NewVersion(strings.TrimPrefix(version, "v")); err == nil {
		return versionKey{
			numbered: true,
			segments: []string{
				strconv.FormatUint(v.Major(), 10),
				strconv.FormatUint(v.Minor(), 10),
				strconv.FormatUint(v.Patch(), 10),
			},
			prerelease: v.Prerelease(),
		}
	}
	segs := digitRuns.FindAllString(version, -1)
	return versionKey{numbered: len(segs) > 0, segments: segs}
}

// IsNewer reports whether candidate is a newer version than current.
//
// Numeric segments are compared as numbers, so "1.0.10" ranks above
// "1.0.2", and missing segments count as zero. Tags that are not semantic
// versions ("1.2.3.4", "release-2024.05") contribute their runs of digits
// as segments. When the segments are equal a semver prerelease ranks
// below the release. A string without digits (such as "dev" or "nightly")
// ranks below every numbered version.
func IsNewer(current, candidate string) bool {
	return CompareVersions(current, candidate) < 0
}

// CompareVersions orders two version strings the way IsNewer does.
// Returns -1 if a < b, 0 if they rank equal, 1 if a > b.
func CompareVersions(a, b string) int {
	ka, kb := keyOf(a), keyOf(b)
	if ka.numbered != kb.numbered {
		if ka.numbered {
			return 1
		}
		return -1
	}
	for i := 0; i < len(ka.segments) || i < len(kb.segments); i++ {
		if c := compareNumeric(segment(ka.segments, i), segment(kb.segments, i)); c != 0 {
			return c
		}
	}
	return comparePrerelease(ka.prerelease, kb.prerelease)
}

// comparePrerelease applies semver precedence to two prerelease strings.
// No prerelease ranks above any prerelease.
func comparePrerelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	va, errA := semver.NewVersion("0.0.0-" + a)
	vb, errB := semver.NewVersion("0.0.0-" + b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

func segment(segs []string, i int) string {
	if i < len(segs) {
		return segs[i]
	}
	return "0"
}

// compareNumeric compares two unsigned decimal strings of any length.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
