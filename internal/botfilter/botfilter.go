// Package botfilter flags automated traffic from user-agent strings.
package botfilter

import (
	"strings"
	"sync"

	"github.com/mileusna/useragent"
)

// CrawlerToken is the platform's own indexing crawler. Its requests carry a
// regular browser-looking agent string with this marker embedded, so the
// signature lookup alone misses them.
const CrawlerToken = "Gallica"

// Filter classifies user-agent strings, caching results: log corpora repeat
// a small set of agents millions of times.
type Filter struct {
	token string

	mu    sync.RWMutex
	cache map[string]bool
}

// New returns a Filter using the given crawler token (CrawlerToken for the
// production platform).
func New(token string) *Filter {
	return &Filter{token: token, cache: make(map[string]bool)}
}

// IsBot reports whether the user-agent belongs to automated traffic: either
// the signature table says bot, or the string contains the platform crawler
// token (logical OR). An absent agent string is not evidence of a bot.
func (f *Filter) IsBot(agent string) bool {
	if agent == "" {
		return false
	}

	f.mu.RLock()
	v, ok := f.cache[agent]
	f.mu.RUnlock()
	if ok {
		return v
	}

	bot := useragent.Parse(agent).Bot || strings.Contains(agent, f.token)

	f.mu.Lock()
	f.cache[agent] = bot
	f.mu.Unlock()
	return bot
}
