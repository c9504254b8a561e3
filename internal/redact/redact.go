// Package redact scrubs secrets from telemetry payloads before they
// leave the host. The local spool keeps the original record; only the
// shipped copy is redacted.
package redact

import (
	"regexp"
	"strings"
)

// Mode controls whether outbound scrubbing is applied.
type Mode string

const (
	ModeOn  Mode = "on"
	ModeOff Mode = "off"
)

// ParseMode resolves a config value to a Mode. Anything other than an
// explicit "off" scrubs. Fail-safe default.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeOff)) {
		return ModeOff
	}
	return ModeOn
}

// Mask replaces matched secret material in shipped payloads.
const Mask = "[REDACTED]"

// Compiled patterns for secret material in command text and raw
// payloads.
var (
	// Credentials: key=value or key: value pairs where the key suggests
	// a secret.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|access_key|auth)[ \t]*[=:][ \t]*)\S+`)

	// Bearer and basic authorization values.
	authHeaderRe = regexp.MustCompile(`(?i)((?:bearer|basic)[ \t]+)[A-Za-z0-9+/._\-=]{8,}`)

	// AWS access key ids.
	awsKeyRe = regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`)

	// Long opaque tokens with a recognizable vendor prefix.
	vendorTokenRe = regexp.MustCompile(`\b(?:ghp|gho|ghs|github_pat|sk|xoxb|xoxp|glpat)[-_][A-Za-z0-9_\-]{16,}\b`)

	// PEM private key blocks, including the body.
	pemRe = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?(?:-----END [A-Z ]*PRIVATE KEY-----|\z)`)
)

// Scrub masks secret material in free text. The input is returned
// unchanged when nothing matches.
func Scrub(text string) string {
	if text == "" {
		return text
	}
	out := pemRe.ReplaceAllString(text, Mask)
	out = credKVRe.ReplaceAllString(out, "${1}"+Mask)
	out = authHeaderRe.ReplaceAllString(out, "${1}"+Mask)
	out = awsKeyRe.ReplaceAllString(out, Mask)
	out = vendorTokenRe.ReplaceAllString(out, Mask)
	return out
}
