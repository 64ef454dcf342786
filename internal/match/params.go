package match

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// PlaceholderNames lists the {name} placeholders in a phrase template,
// in order of appearance.
func PlaceholderNames(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// StripPlaceholders removes {name} markers from a template, leaving only the
// literal words for fuzzy scoring.
func StripPlaceholders(template string) string {
	return Normalize(placeholderPattern.ReplaceAllString(template, " "))
}

// ExtractParams binds a template's placeholders to substrings of the
// transcript. The template's literal words must appear in order but the
// pattern is searched anywhere in the transcript, so leading or trailing
// filler does not defeat extraction. Non-final placeholders capture lazily up
// to the next literal token; the final one captures greedily to the end of
// the transcript. A transcript the compiled pattern cannot find yields an
// empty map: execution then proceeds with no bound parameters.
func ExtractParams(template, transcript string) map[string]string {
	params := make(map[string]string)

	// Names come from the raw template so their case survives into the
	// result map; Normalize lowercases the markers, so the lowered form is
	// what must be located in the quoted pattern.
	names := PlaceholderNames(template)
	if len(names) == 0 {
		return params
	}

	pattern := regexp.QuoteMeta(Normalize(template))
	for i, name := range names {
		capture := `(.+?)`
		if i == len(names)-1 {
			capture = `(.+)`
		}
		pattern = strings.Replace(pattern, `\{`+strings.ToLower(name)+`\}`, capture, 1)
	}

	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return params
	}

	groups := re.FindStringSubmatch(Normalize(transcript))
	if groups == nil {
		return params
	}

	for i, name := range names {
		params[name] = strings.TrimSpace(groups[i+1])
	}
	return params
}
