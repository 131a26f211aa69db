package filter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single pattern evaluation so a pathological
// pattern cannot stall dispatch.
const matchTimeout = 50 * time.Millisecond

// defaultPatterns backs the zero Engine.
var defaultPatterns = newPatternCache(slog.Default())

type compiledPattern struct {
	re  *regexp2.Regexp
	err error
}

// patternCache compiles each pattern source once.
type patternCache struct {
	entries sync.Map // string -> *compiledPattern
	logger  *slog.Logger
}

func newPatternCache(logger *slog.Logger) *patternCache {
	return &patternCache{logger: logger}
}

func (c *patternCache) get(source string) *compiledPattern {
	if cached, ok := c.entries.Load(source); ok {
		return cached.(*compiledPattern)
	}
	re, err := Compile(source)
	entry, loaded := c.entries.LoadOrStore(source, &compiledPattern{re: re, err: err})
	if err != nil && !loaded {
		c.logger.Warn("filter pattern does not compile, ignoring it",
			"pattern", source,
			"error", err,
		)
	}
	return entry.(*compiledPattern)
}

// match returns ok=false when the pattern is invalid or evaluation failed.
func (c *patternCache) match(source, s string) (matched, ok bool) {
	p := c.get(source)
	if p.err != nil {
		return false, false
	}
	matched, err := p.re.MatchString(s)
	if err != nil {
		c.logger.Warn("filter pattern evaluation failed",
			"pattern", source,
			"error", err,
		)
		return false, false
	}
	return matched, true
}

// Compile compiles an ECMAScript pattern source with the match timeout
// applied. Exposed for the page allow check, which uses the same dialect.
func Compile(source string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(source, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}
