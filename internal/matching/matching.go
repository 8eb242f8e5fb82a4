package matching

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/telemetry"
)

// Word boundaries are letters, digits and underscore in any script.
const (
	boundaryBefore = `(?:^|[^\p{L}\p{N}_])`
	boundaryAfter  = `(?:[^\p{L}\p{N}_]|$)`
)

// patternCacheSize bounds the compiled rule expressions kept between calls.
const patternCacheSize = 4096

var patterns = newPatternCache(patternCacheSize)

var (
	splitTermsRe = regexp.MustCompile(`"([^"]+)"|(\S+)`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// Matcher evaluates rules. It holds no per-call state and is safe for
// concurrent use.
type Matcher struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the matcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records rule evaluations in metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Matcher) {
		m.metrics = metrics
	}
}

// NewMatcher creates a Matcher.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Matches reports whether rule applies to text using a default Matcher.
func Matches(rule Rule, text string) (bool, error) {
	return NewMatcher().Matches(rule, text)
}

// Matches reports whether rule applies to text. An empty match expression
// never matches. Invalid regular expressions are logged and do not match.
// An algorithm outside the known set returns a fatal error.
func (m *Matcher) Matches(rule Rule, text string) (bool, error) {
	if strings.TrimSpace(rule.Match) == "" {
		return false, nil
	}

	flags := ""
	if rule.CaseInsensitive {
		flags = "(?i)"
	}

	var (
		matched bool
		reason  string
	)

	switch rule.Algorithm {
	case AlgorithmNone:
		return false, nil

	case AlgorithmAll:
		matched = true
		for _, word := range SplitMatch(rule.Match) {
			if !wordRegexp(flags, word).MatchString(text) {
				matched = false
				break
			}
		}
		reason = "contains all of the words"

	case AlgorithmAny:
		for _, word := range SplitMatch(rule.Match) {
			if wordRegexp(flags, word).MatchString(text) {
				matched = true
				reason = fmt.Sprintf("contains the word %q", word)
				break
			}
		}

	case AlgorithmLiteral:
		matched = wordRegexp(flags, regexp.QuoteMeta(rule.Match)).MatchString(text)
		reason = "contains the string"

	case AlgorithmRegex:
		re, err := compilePattern(flags + rule.Match)
		if err != nil {
			perr := serrors.New(serrors.ErrCodeInvalidPattern,
				fmt.Sprintf("invalid regular expression %q", rule.Match), err)
			m.logger.Error("Invalid rule regular expression, rule does not match", serrors.LogAttrs(perr)...)
			m.metrics.RegexError()
			return false, nil
		}
		if loc := re.FindStringIndex(text); loc != nil {
			matched = true
			reason = fmt.Sprintf("%q matches the expression", text[loc[0]:loc[1]])
		}

	case AlgorithmFuzzy:
		pattern := nonWordRe.ReplaceAllString(rule.Match, "")
		content := nonWordRe.ReplaceAllString(text, "")
		if rule.CaseInsensitive {
			pattern = strings.ToLower(pattern)
			content = strings.ToLower(content)
		}
		matched = PartialRatio(pattern, content) >= FuzzyThreshold
		reason = "parts of the content resemble the string"

	case AlgorithmAuto:
		// decided by the classifier, not by the rule
		return false, nil

	default:
		return false, serrors.Newf(serrors.ErrCodeUnsupportedAlgorithm,
			"unsupported matching algorithm %d", int(rule.Algorithm))
	}

	m.metrics.RuleEvaluated(rule.Algorithm.String(), matched)
	if matched {
		m.logger.Debug("Rule matched",
			slog.String("algorithm", rule.Algorithm.String()),
			slog.String("match", rule.Match),
			slog.String("reason", reason))
	}
	return matched, nil
}

// wordRegexp matches expr as a whole word. expr is already a regular
// expression; word boundaries are Unicode aware.
func wordRegexp(flags, expr string) *regexp.Regexp {
	pattern := flags + boundaryBefore + "(?:" + expr + ")" + boundaryAfter
	if re, ok := patterns.Get(pattern); ok {
		return re
	}
	re := regexp.MustCompile(pattern)
	patterns.Add(pattern, re)
	return re
}

// compilePattern compiles pattern, reusing an earlier compilation.
// Invalid patterns are not cached.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Add(pattern, re)
	return re, nil
}

func newPatternCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return c
}

// SplitMatch splits a match expression into escaped word patterns. Runs of
// whitespace collapse, and quoted groups stay together with their inner
// whitespace matching any whitespace run:
//
//	`  some random  words "with   quotes  " and   spaces`
//	=> some, random, words, with\s+quotes, and, spaces
func SplitMatch(match string) []string {
	var words []string
	for _, m := range splitTermsRe.FindAllStringSubmatch(match, -1) {
		term := m[1]
		if term == "" {
			term = m[2]
		}
		term = spaceRunRe.ReplaceAllString(strings.TrimSpace(term), " ")
		if term == "" {
			continue
		}
		words = append(words, strings.ReplaceAll(regexp.QuoteMeta(term), " ", `\s+`))
	}
	return words
}
