package usecase

import (
	"regexp"
	"strings"

	"flowrelay/internal/domain"
)

// Directive patterns, checked first-match-wins. A directive that almost
// matches (missing identifier, no trailing text after the key) is not an
// error: it falls through to the default-target path with the message
// untouched.
var (
	listPattern     = regexp.MustCompile(`(?i)^@(?:workflows?|models?)$`)
	setPattern      = regexp.MustCompile(`(?i)^@set-workflow:(\S+)$`)
	explicitPattern = regexp.MustCompile(`(?is)^@(?:workflow|model):(\S+)\s+(.*)$`)
	flowPattern     = regexp.MustCompile(`(?is)^@flow:(\S+)\s+(.*)$`)
	autoPattern     = regexp.MustCompile(`(?is)^@agent\s+(.*)$`)
)

// Parse extracts the routing intent and cleaned message from raw chat
// input. Message text is passed through unmodified apart from whitespace
// trimming around a directive remainder; no unicode normalization.
func Parse(raw string) domain.Intent {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return domain.Intent{Kind: domain.IntentUseDefault, Text: ""}
	}

	if listPattern.MatchString(stripped) {
		return domain.Intent{Kind: domain.IntentListTargets}
	}

	if m := setPattern.FindStringSubmatch(stripped); m != nil {
		return domain.Intent{
			Kind:      domain.IntentSetDefault,
			TargetKey: strings.ToLower(m[1]),
		}
	}

	if m := explicitPattern.FindStringSubmatch(raw); m != nil {
		return domain.Intent{
			Kind:      domain.IntentUseExplicit,
			TargetKey: strings.ToLower(m[1]),
			Text:      strings.TrimSpace(m[2]),
		}
	}

	// @flow: addresses the backend flow id directly; ids are opaque so
	// their case is preserved.
	if m := flowPattern.FindStringSubmatch(raw); m != nil {
		return domain.Intent{
			Kind:       domain.IntentUseExplicit,
			TargetKey:  m[1],
			ByRemoteID: true,
			Text:       strings.TrimSpace(m[2]),
		}
	}

	if m := autoPattern.FindStringSubmatch(raw); m != nil {
		return domain.Intent{
			Kind: domain.IntentUseAuto,
			Text: strings.TrimSpace(m[1]),
		}
	}

	return domain.Intent{Kind: domain.IntentUseDefault, Text: raw}
}
