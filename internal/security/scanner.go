package security

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode"
)

// Severity is the verdict of an input scan.
type Severity string

const (
	SeveritySafe  Severity = "safe"
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
)

// FlagType is the pattern family that produced a flag.
type FlagType string

const (
	FlagInjection    FlagType = "injection"
	FlagSensitive    FlagType = "sensitive"
	FlagExfiltration FlagType = "exfiltration"
)

// maxMatchLength bounds the matched text recorded on a flag.
const maxMatchLength = 100

const (
	filteredMarker = "[filtered]"
	redactedMarker = "[redacted]"
)

// Flag is a single pattern match.
type Flag struct {
	Type     FlagType `json:"type"`
	Pattern  string   `json:"pattern"`
	Match    string   `json:"match"`
	Severity Severity `json:"severity"`
}

// ScanResult is the outcome of Scan.
type ScanResult struct {
	Safe           bool     `json:"safe"`
	Severity       Severity `json:"severity"`
	Flags          []Flag   `json:"flags"`
	SanitizedInput string   `json:"sanitizedInput"`
}

// Blocked reports whether the input must not reach a model.
func (r ScanResult) Blocked() bool {
	return r.Severity == SeverityBlock
}

// FlagTypes returns the distinct flag types in first-seen order.
func (r ScanResult) FlagTypes() []string {
	seen := make(map[FlagType]bool, len(r.Flags))
	types := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		if seen[f.Type] {
			continue
		}
		seen[f.Type] = true
		types = append(types, string(f.Type))
	}
	return types
}

type pattern struct {
	name string
	kind FlagType
	re   *regexp.Regexp
	// strip removes the span instead of replacing it with a marker.
	strip bool
	// accept, when set, filters candidate spans the regexp matched.
	accept func(string) bool
}

// find returns the first accepted match in s.
func (p pattern) find(s string) string {
	if p.accept == nil {
		return p.re.FindString(s)
	}
	for _, m := range p.re.FindAllString(s, -1) {
		if p.accept(m) {
			return m
		}
	}
	return ""
}

// replace substitutes every accepted match in s with repl.
func (p pattern) replace(s, repl string) string {
	if p.accept == nil {
		return p.re.ReplaceAllLiteralString(s, repl)
	}
	return p.re.ReplaceAllStringFunc(s, func(m string) string {
		if p.accept(m) {
			return repl
		}
		return m
	})
}

var injectionPatterns = []pattern{
	{
		name: "instruction_override",
		kind: FlagInjection,
		re:   regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget|override|bypass)\s+(?:(?:all|any|the|your|of|these|those)\s+)*(?:previous|prior|above|earlier|preceding|system)\s+(?:instructions?|prompts?|rules?|directives?|guidelines?)`),
	},
	{
		name: "role_manipulation",
		kind: FlagInjection,
		re:   regexp.MustCompile(`(?i)\b(?:you\s+are\s+now\s+(?:a|an|the|my|no\s+longer)\b|pretend\s+(?:to\s+be|you\s+are)\b|act\s+as\s+(?:an?\s+)?(?:unrestricted|unfiltered|uncensored|evil)\b|from\s+now\s+on,?\s+you\s+(?:are|will)\b)`),
	},
	{
		name: "system_prompt_extraction",
		kind: FlagInjection,
		re:   regexp.MustCompile(`(?i)\b(?:reveal|show|print|repeat|output|display|leak|dump|tell\s+me)\s+(?:me\s+)?(?:your|the)\s+(?:system\s+prompt|(?:initial|hidden|original|system|secret)\s+(?:instructions|prompt))|\bwhat\s+(?:is|are)\s+your\s+(?:system\s+prompt|(?:initial|hidden|original|system)\s+instructions)`),
	},
	{
		name: "output_manipulation",
		kind: FlagInjection,
		re:   regexp.MustCompile(`(?i)</?\s*(?:app_actions|thinking|system)\s*>|\b(?:begin|start)\s+your\s+(?:response|reply|answer)\s+with\b`),
	},
	{
		name: "jailbreak",
		kind: FlagInjection,
		re:   regexp.MustCompile(`(?i)\b(?:DAN\s+mode|do\s+anything\s+now|developer\s+mode\s+(?:enabled|on|activated)|jailbr(?:eak|eaks|oken|eaking)|ignore\s+(?:your|all)\s+(?:safety|content)\s+(?:rules|policies|filters|guidelines))\b`),
	},
	{
		name:  "encoded_payload_base64",
		kind:  FlagInjection,
		re:    regexp.MustCompile(`[A-Za-z0-9+/]{60,}={0,2}`),
		strip: true,
	},
	{
		name:  "encoded_payload_hex",
		kind:  FlagInjection,
		re:    regexp.MustCompile(`\b(?:0[xX])?[0-9a-fA-F]{64,}\b`),
		strip: true,
	},
}

var sensitivePatterns = []pattern{
	{
		name: "api_key",
		kind: FlagSensitive,
		re:   regexp.MustCompile(`\b(?:sk-(?:ant-)?[A-Za-z0-9_-]{20,}|AKIA[0-9A-Z]{16}|gh[pousr]_[A-Za-z0-9]{36}|xox[abpr]-[A-Za-z0-9-]{10,}|AIza[0-9A-Za-z_-]{35})`),
	},
	{
		name: "credit_card",
		kind: FlagSensitive,
		re:   regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`),
	},
	{
		name: "ssn",
		kind: FlagSensitive,
		re:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		name: "email",
		kind: FlagSensitive,
		re:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
}

var exfiltrationPatterns = []pattern{
	{
		name: "send_data",
		kind: FlagExfiltration,
		re:   regexp.MustCompile(`(?i)\b(?:send|post|upload|forward|transmit|exfiltrate|leak)\b[^\n]{0,80}?\bto\s+(?:https?://\S+|(?:[a-z0-9-]+\.)+(?:com|net|org|io|me|co|xyz|ru|cn|dev|app|site|info)\b)`),
	},
	{
		name: "http_request",
		kind: FlagExfiltration,
		re:   regexp.MustCompile(`\b(?:GET|POST|PUT|PATCH|DELETE|HEAD)\s+https?://\S+|(?i:\b(?:curl|wget)\s+(?:-{1,2}\S+\s+)*https?://\S+)`),
	},
}

// escapedSequence matches literal \uXXXX and \xXX escapes used to smuggle text.
var escapedSequence = regexp.MustCompile(`\\u[0-9a-fA-F]{4}|\\x[0-9a-fA-F]{2}`)

// Scan checks raw user text for prompt injection, sensitive data and
// exfiltration phrasing. It is deterministic and performs no I/O. The
// sanitized copy is always produced, whatever the verdict.
func Scan(input string) ScanResult {
	var flags []Flag
	for _, family := range [][]pattern{injectionPatterns, sensitivePatterns, exfiltrationPatterns} {
		for _, p := range family {
			match := p.find(input)
			if match == "" {
				continue
			}
			flags = append(flags, Flag{
				Type:     p.kind,
				Pattern:  p.name,
				Match:    truncate(match, maxMatchLength),
				Severity: severityFor(p.kind),
			})
		}
	}

	severity := aggregate(flags)
	return ScanResult{
		Safe:           severity == SeveritySafe,
		Severity:       severity,
		Flags:          flags,
		SanitizedInput: sanitize(input),
	}
}

func severityFor(kind FlagType) Severity {
	if kind == FlagSensitive {
		return SeverityWarn
	}
	return SeverityBlock
}

func aggregate(flags []Flag) Severity {
	severity := SeveritySafe
	for _, f := range flags {
		switch f.Severity {
		case SeverityBlock:
			return SeverityBlock
		case SeverityWarn:
			severity = SeverityWarn
		}
	}
	return severity
}

func sanitize(input string) string {
	out := escapedSequence.ReplaceAllString(input, "")
	for _, p := range injectionPatterns {
		if p.strip {
			out = p.replace(out, "")
		}
	}
	for _, p := range injectionPatterns {
		if !p.strip {
			out = p.replace(out, filteredMarker)
		}
	}
	for _, p := range sensitivePatterns {
		out = p.replace(out, redactedMarker)
	}
	return strings.TrimSpace(out)
}

// plausibleBase64 separates encoded blobs from URL paths and file paths,
// which share the base64 alphabet. A span qualifies when it decodes to mostly
// printable text, or when it has no path separators and mixes upper case,
// lower case and digits the way binary encodings do.
func plausibleBase64(span string) bool {
	if decodesToText(span) {
		return true
	}
	if strings.Contains(span, "/") {
		return false
	}
	var upper, lower, digit bool
	for _, r := range span {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// decodesToText reports whether span is base64 whose payload is at least 90%
// printable ASCII.
func decodesToText(span string) bool {
	raw := strings.TrimRight(span, "=")
	if len(raw)%4 == 1 {
		raw = raw[:len(raw)-1]
	}
	decoded, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(decoded) == 0 {
		return false
	}
	printable := 0
	for _, b := range decoded {
		if (b >= 0x20 && b < 0x7f) || b == '\n' || b == '\r' || b == '\t' {
			printable++
		}
	}
	return printable*10 >= len(decoded)*9
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
