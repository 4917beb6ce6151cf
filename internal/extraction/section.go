// SPDX-License-Identifier: Apache-2.0

package extraction

import "strings"

// ExtractSection returns the structured payload that follows DataMarker, with
// the completion marker removed and surrounding whitespace trimmed. ok is
// false when the marker is missing or nothing follows it.
func ExtractSection(content string) (section string, ok bool) {
	_, after, found := strings.Cut(content, DataMarker)
	if !found {
		return "", false
	}
	section = strings.TrimSpace(strings.ReplaceAll(after, StreamCompleteMarker, ""))
	if section == "" {
		return "", false
	}
	return section, true
}

// Prose returns the human-readable part of content: everything before
// DataMarker with control tokens stripped.
func Prose(content string) string {
	before, _, _ := strings.Cut(content, DataMarker)
	return strings.TrimSpace(StripControlTokens(before))
}

// IsComplete decides whether a streamed data section is worth parsing yet.
// An explicit terminal marker anywhere in the message wins. Otherwise the
// section must look like a closed JSON object that mentions headers or rows.
// False positives are acceptable because Parse degrades instead of failing.
func IsComplete(section, fullMessage string) bool {
	for _, m := range terminalMarkers {
		if strings.Contains(fullMessage, m) {
			return true
		}
	}

	s := strings.TrimSpace(StripControlTokens(section))
	if !strings.HasPrefix(s, "{") {
		return false
	}
	if !hasAnySuffix(s, "}}", "]}", `"}]`, `"}`) {
		return false
	}
	return containsAny(s, `"headers"`, `"Headers"`, `"rows"`, `"Rows"`)
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
