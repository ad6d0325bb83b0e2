// Package redact scrubs secrets from transcripts before they leave the
// machine, such as when a session is shared as a gist.
package redact

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
)

// Mode selects how aggressively content is scrubbed.
type Mode string

const (
	// ModeOff disables redaction.
	ModeOff Mode = "off"
	// ModeBasic scrubs env assignments, HTTP headers, URL query
	// parameters, and PEM blocks. Default for shared content.
	ModeBasic Mode = "basic"
	// ModeAggressive additionally scrubs known token prefixes and
	// high-entropy strings.
	ModeAggressive Mode = "aggressive"
)

const defaultReplacement = "***REDACTED***"

// Shannon entropy above this reads as randomness rather than language.
const entropyThreshold = 4.0

const minEntropyCandidateLen = 20

// Config holds configuration for a Redactor.
type Config struct {
	Mode Mode
	// CustomKeys are extra env-style key suffixes to scrub, e.g.
	// "MY_API_KEY,DEPLOY_SECRET".
	CustomKeys  string
	Replacement string
}

// Redactor scrubs secrets from text.
type Redactor struct {
	mode        Mode
	replacement string

	envPatterns []*regexp.Regexp
	headerRe    []*regexp.Regexp
	paramRe     []*regexp.Regexp
	prefixRe    []prefixPattern
	pemRe       *regexp.Regexp
	candidateRe *regexp.Regexp
}

type prefixPattern struct {
	prefix string
	re     *regexp.Regexp
}

// New creates a Redactor. Zero-value config gives basic mode with the
// default replacement marker.
func New(cfg Config) *Redactor {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeBasic
	}
	replacement := cfg.Replacement
	if replacement == "" {
		replacement = defaultReplacement
	}

	r := &Redactor{mode: mode, replacement: replacement}
	if mode == ModeOff {
		return r
	}

	keySuffixes := []string{
		"_TOKEN", "_KEY", "_SECRET", "_PASSWORD",
		"_API_KEY", "_AUTH_TOKEN", "_AUTHORIZATION",
	}
	exactKeys := []string{"API_KEY", "AUTH_TOKEN", "PASSWORD", "APIKEY", "SECRET"}
	for _, key := range strings.Split(cfg.CustomKeys, ",") {
		if key = strings.TrimSpace(key); key != "" {
			exactKeys = append(exactKeys, key)
		}
	}
	for _, suffix := range keySuffixes {
		r.envPatterns = append(r.envPatterns, regexp.MustCompile(
			`(\w+`+regexp.QuoteMeta(suffix)+`)\s*=\s*['"]?([^'"\s\n]+)['"]?`))
	}
	for _, key := range exactKeys {
		r.envPatterns = append(r.envPatterns, regexp.MustCompile(
			`(`+regexp.QuoteMeta(key)+`)\s*=\s*['"]?([^'"\s\n]+)['"]?`))
	}

	for _, header := range []string{
		"Authorization", "X-API-Key", "X-Auth-Token", "X-GitHub-Token",
		"Authentication", "Cookie", "Set-Cookie", "Proxy-Authorization",
	} {
		r.headerRe = append(r.headerRe, regexp.MustCompile(
			`(?i)(^|\n)\s*(`+regexp.QuoteMeta(header)+`)\s*:\s*[^\n\r]+`))
	}

	for _, param := range []string{
		"token", "key", "secret", "password", "api_key",
		"access_token", "refresh_token", "auth_token", "apikey",
	} {
		r.paramRe = append(r.paramRe, regexp.MustCompile(
			`([?&]`+regexp.QuoteMeta(param)+`)=[^&\s#'"]+`))
	}

	r.pemRe = regexp.MustCompile(
		`-----BEGIN [A-Za-z0-9+/\s-]+-----[\s\S]*?-----END [A-Za-z0-9+/\s-]+-----`)

	if mode == ModeAggressive {
		for _, p := range []struct{ prefix, pattern string }{
			{"ghp_", `ghp_[A-Za-z0-9_]{32,36}`},
			{"gho_", `gho_[A-Za-z0-9_]{32,36}`},
			{"ghs_", `ghs_[A-Za-z0-9_]{32,36}`},
			{"sk-", `sk-[A-Za-z0-9_]{26,46}`},
			{"sk_live_", `sk_live_[A-Za-z0-9_]{32,40}`},
			{"hf_", `hf_[A-Za-z0-9_]{26,46}`},
			{"AKIA", `AKIA[A-Z0-9]{16}`},
			{"xoxb-", `xoxb-[A-Za-z0-9\-]{26,46}`},
			{"ya29.", `ya29\.[A-Za-z0-9_\-]{46,196}`},
		} {
			r.prefixRe = append(r.prefixRe, prefixPattern{p.prefix, regexp.MustCompile(p.pattern)})
		}
		r.candidateRe = regexp.MustCompile(
			fmt.Sprintf(`\b[A-Za-z0-9_\-\.]{%d,}\b`, minEntropyCandidateLen))
	}
	return r
}

// FromEnv creates a Redactor configured by AGENTDECK_REDACT,
// AGENTDECK_REDACT_KEYS, and AGENTDECK_REDACT_REPLACEMENT.
func FromEnv() *Redactor {
	mode := Mode(os.Getenv("AGENTDECK_REDACT"))
	switch mode {
	case ModeOff, ModeBasic, ModeAggressive:
	default:
		mode = ModeBasic
	}
	return New(Config{
		Mode:        mode,
		CustomKeys:  os.Getenv("AGENTDECK_REDACT_KEYS"),
		Replacement: os.Getenv("AGENTDECK_REDACT_REPLACEMENT"),
	})
}

// Redact scrubs secrets from content according to the redactor's mode.
func (r *Redactor) Redact(content string) string {
	if r.mode == ModeOff {
		return content
	}

	content = r.pemRe.ReplaceAllString(content,
		"-----BEGIN REDACTED-----\n"+r.replacement+"\n-----END REDACTED-----")
	for _, re := range r.envPatterns {
		content = re.ReplaceAllString(content, "$1="+r.replacement)
	}
	for _, re := range r.headerRe {
		content = re.ReplaceAllString(content, "$1$2: "+r.replacement)
	}
	for _, re := range r.paramRe {
		content = re.ReplaceAllString(content, "$1="+r.replacement)
	}

	if r.mode == ModeAggressive {
		for _, p := range r.prefixRe {
			content = p.re.ReplaceAllString(content, p.prefix+r.replacement)
		}
		content = r.redactHighEntropy(content)
	}
	return content
}

func (r *Redactor) redactHighEntropy(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		for _, match := range r.candidateRe.FindAllString(line, -1) {
			if likelyFalsePositive(match) {
				continue
			}
			if shannonEntropy(match) > entropyThreshold {
				line = strings.ReplaceAll(line, match, r.replacement)
			}
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func shannonEntropy(s string) float64 {
	freq := map[rune]float64{}
	for _, ch := range s {
		freq[ch]++
	}
	entropy := 0.0
	for _, count := range freq {
		p := count / float64(len(s))
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func likelyFalsePositive(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}
	if s == strings.ToLower(s) && len(s) < 30 {
		return true
	}
	if s == strings.ToUpper(s) && len(s) < 20 {
		return true
	}
	lower := 0
	for _, ch := range s {
		if ch >= 'a' && ch <= 'z' {
			lower++
		}
	}
	return float64(lower)/float64(len(s)) > 0.7
}
