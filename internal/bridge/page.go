package bridge

import (
	"log/slog"
	"strings"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/filter"
)

// PageAllowChecker decides whether stores on the current page are
// instrumented at all.
type PageAllowChecker interface {
	Allowed() bool
}

// PageAllowFunc adapts a func to PageAllowChecker.
type PageAllowFunc func() bool

// Allowed calls f.
func (f PageAllowFunc) Allowed() bool {
	return f()
}

// AllowAll allows every page.
var AllowAll PageAllowChecker = PageAllowFunc(func() bool { return true })

// URLAllowChecker allows a page when injection is forced, when no URL
// patterns are configured, or when URL matches the patterns joined with "|".
//
// A pattern that does not compile or times out allows the page; the error is
// logged.
type URLAllowChecker struct {
	URL     string
	Options config.Options
	Logger  *slog.Logger
}

// Allowed implements PageAllowChecker.
func (c URLAllowChecker) Allowed() bool {
	if c.Options.Inject {
		return true
	}
	patterns := c.Options.URLPatterns()
	if len(patterns) == 0 {
		return true
	}
	source := strings.Join(patterns, "|")
	re, err := filter.Compile(source)
	if err != nil {
		c.logger().Warn("url pattern does not compile, allowing page", "pattern", source, "error", err)
		return true
	}
	ok, err := re.MatchString(c.URL)
	if err != nil {
		c.logger().Warn("url pattern match failed, allowing page", "pattern", source, "url", c.URL, "error", err)
		return true
	}
	return ok
}

func (c URLAllowChecker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
