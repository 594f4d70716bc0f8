package docs

import (
	"regexp"
	"strings"
)

var (
	tagSuffixRe   = regexp.MustCompile(`\s*\|\s*([^|]*)$`)
	leadingSortRe = regexp.MustCompile(`^(\d+)[-–_.\s]*`)
	extensionRe   = regexp.MustCompile(`\.\w{1,5}$`)
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseTags extracts the lowercase tag set from a raw name's comma-delimited
// suffix, e.g. "Welcome | home, hidden" -> [home hidden].
func ParseTags(raw string) []string {
	m := tagSuffixRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(m[1], ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// CleanName strips the tag suffix, any leading numeric sort token and a
// trailing file extension from a raw name.
func CleanName(raw string) string {
	s := tagSuffixRe.ReplaceAllString(raw, "")
	s = leadingSortRe.ReplaceAllString(s, "")
	s = extensionRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Slugify derives a lowercase, hyphenated, URL-safe identifier.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugInvalidRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SortKey returns the leading numeric token of the raw name, or the pretty
// name when there is none. Used for ordering siblings.
func SortKey(raw, pretty string) string {
	if m := leadingSortRe.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
		return m[1]
	}
	return pretty
}

// ResourceType maps a mime type to the short type the router understands:
// the suffix for native drive types ("folder", "document", ...), the raw
// mime otherwise.
func ResourceType(mimeType string) string {
	const nativePrefix = "application/vnd.google-apps."
	if strings.HasPrefix(mimeType, nativePrefix) {
		return strings.TrimPrefix(mimeType, nativePrefix)
	}
	return mimeType
}
