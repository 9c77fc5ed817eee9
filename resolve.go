package deployver

import (
	"strconv"
	"strings"
)

type placeholderKind int

const (
	kindLiteral placeholderKind = iota
	kindGitTag
	kindPackageVersion
	kindCommitCount
	kindCommitHash
	kindBranch
	kindBuildNumber
)

// resolutionOrder is the order placeholder kinds are resolved in
var resolutionOrder = []placeholderKind{
	kindGitTag,
	kindPackageVersion,
	kindCommitCount,
	kindCommitHash,
	kindBranch,
	kindBuildNumber,
}

var placeholderNames = map[string]placeholderKind{
	"git-tag":         kindGitTag,
	"package-version": kindPackageVersion,
	"commit-count":    kindCommitCount,
	"commit-hash":     kindCommitHash,
	"branch":          kindBranch,
	"build-number":    kindBuildNumber,
}

// token is either a run of literal text or one recognised placeholder
type token struct {
	kind    placeholderKind
	literal string
	arg     int
	hasArg  bool
}

// tokenize splits format into literal text and placeholders in one pass.
// Anything that is not one of the known placeholder shapes stays literal.
func tokenize(format string) []token {
	var tokens []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: kindLiteral, literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(format); {
		if format[i] == '{' {
			if tok, width, ok := parsePlaceholder(format[i:]); ok {
				flush()
				tokens = append(tokens, tok)
				i += width
				continue
			}
		}
		lit.WriteByte(format[i])
		i++
	}
	flush()

	return tokens
}

// parsePlaceholder parses a placeholder at the start of s, which begins with '{'
func parsePlaceholder(s string) (token, int, bool) {
	end := strings.IndexAny(s[1:], "{}")
	if end < 0 || s[1+end] != '}' {
		return token{}, 0, false
	}
	body := s[1 : 1+end]
	width := end + 2

	name, arg, hasArg := strings.Cut(body, ":")
	kind, ok := placeholderNames[name]
	if !ok {
		return token{}, 0, false
	}

	tok := token{kind: kind}
	if hasArg {
		if kind != kindCommitCount && kind != kindCommitHash {
			return token{}, 0, false
		}
		n, ok := parseDigits(arg)
		if !ok {
			return token{}, 0, false
		}
		tok.arg = n
		tok.hasArg = true
	}

	return tok, width, true
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolve substitutes every known placeholder in format. Each kind is
// resolved in resolutionOrder against the original tokens, so substituted
// values are never expanded again.
func resolve(format string, components Components, ctx ComputationContext) string {
	tokens := tokenize(format)
	values := make([]string, len(tokens))

	for i, tok := range tokens {
		if tok.kind == kindLiteral {
			values[i] = tok.literal
		}
	}

	for _, kind := range resolutionOrder {
		for i, tok := range tokens {
			if tok.kind != kind {
				continue
			}
			values[i] = resolveToken(tok, components, ctx)
		}
	}

	return strings.Join(values, "")
}

func resolveToken(tok token, components Components, ctx ComputationContext) string {
	switch tok.kind {
	case kindGitTag:
		return resolveGitTag(components, ctx.GitInfo)
	case kindPackageVersion:
		return orDefault(ctx.PackageVersion, "0.0.0")
	case kindCommitCount:
		padding := components.padding()
		if tok.hasArg {
			padding = tok.arg
		}
		return padNumber(commitCountFor(components, ctx.GitInfo), padding)
	case kindCommitHash:
		length := DefaultShortHashLength
		if tok.hasArg {
			length = tok.arg
		}
		return ShortenHash(ctx.GitInfo.CommitHash, length)
	case kindBranch:
		return SanitizeBranch(ctx.GitInfo.Branch)
	case kindBuildNumber:
		return orDefault(ctx.BuildNumber, "0")
	default:
		return tok.literal
	}
}

func resolveGitTag(components Components, info GitInfo) string {
	cfg := components.GitTag
	tag := info.Tag

	if tag != "" && cfg != nil && cfg.Prefix != "" {
		tag = strings.TrimPrefix(tag, cfg.Prefix)
	}
	if tag != "" {
		return tag
	}

	if since, ok := info.SinceTag(); ok && cfg != nil && cfg.CountCommitsSince {
		return "dev." + padNumber(since, components.padding())
	}

	return "dev"
}

func commitCountFor(components Components, info GitInfo) int {
	if components.CommitCount != nil && components.CommitCount.Mode == CommitCountSinceTag {
		if since, ok := info.SinceTag(); ok {
			return since
		}
	}
	return info.CommitCount
}

// padNumber left-pads n with zeros to at least width digits
func padNumber(n, width int) string {
	s := strconv.Itoa(n)
	if width > len(s) {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// SanitizeBranch makes a branch name safe for use inside a version string.
// Characters outside [A-Za-z0-9-] become '-', runs of '-' collapse to one and
// leading or trailing '-' are removed.
func SanitizeBranch(branch string) string {
	var b strings.Builder
	b.Grow(len(branch))

	lastDash := false
	for i := 0; i < len(branch); i++ {
		c := branch[i]
		if !isBranchChar(c) {
			c = '-'
		}
		if c == '-' {
			if lastDash {
				continue
			}
			lastDash = true
		} else {
			lastDash = false
		}
		b.WriteByte(c)
	}

	return strings.Trim(b.String(), "-")
}

func isBranchChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-'
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
