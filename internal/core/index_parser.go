package core

import (
	"regexp"
	"strings"

	"noir-registry/internal/types"
)

var (
	// - [name](url) - description; the separator and description are optional.
	indexEntryPattern   = regexp.MustCompile(`^\s*[-*+]\s*\[([^\]]*)\]\(\s*([^)\s]+)\s*\)\s*(?:[-–—:]\s*)?(.*)$`)
	indexHeadingPattern = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.*?)\s*#*\s*$`)
)

type IndexParser struct{}

func NewIndexParser() IndexParser {
	return IndexParser{}
}

// Parse extracts package entries from a curated markdown index. Lines that
// are not list links are ignored. Links with an empty name or a target that
// is not a GitHub repository are discarded. When a name repeats, the first
// occurrence wins.
func (p IndexParser) Parse(document []byte) types.IndexParseResult {
	result := types.IndexParseResult{}
	seen := map[string]struct{}{}
	var headings []heading
	inFence := false
	for i, line := range strings.Split(string(document), "\n") {
		lineNo := i + 1
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if match := indexHeadingPattern.FindStringSubmatch(line); match != nil {
			headings = pushHeading(headings, heading{level: len(match[1]), text: cleanMarkdownText(match[2])})
			continue
		}
		match := indexEntryPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := cleanMarkdownText(match[1])
		target := strings.TrimSpace(match[2])
		if name == "" {
			result.Discarded++
			continue
		}
		ref, err := ParseGithubURL(target)
		if err != nil {
			result.Discarded++
			continue
		}
		if _, ok := seen[name]; ok {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		seen[name] = struct{}{}
		result.Entries = append(result.Entries, types.IndexEntry{
			Name:          name,
			RepositoryURL: CanonicalGithubURL(ref),
			Description:   cleanDescription(match[3]),
			Sections:      headingTexts(headings),
			Line:          lineNo,
		})
	}
	return result
}

type heading struct {
	level int
	text  string
}

func pushHeading(stack []heading, next heading) []heading {
	for len(stack) > 0 && stack[len(stack)-1].level >= next.level {
		stack = stack[:len(stack)-1]
	}
	return append(stack, next)
}

func headingTexts(stack []heading) []string {
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, 0, len(stack))
	for _, h := range stack {
		if h.text != "" {
			out = append(out, h.text)
		}
	}
	return out
}

func cleanMarkdownText(value string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(value), "*_`"))
}

func cleanDescription(value string) string {
	return strings.TrimSpace(value)
}
