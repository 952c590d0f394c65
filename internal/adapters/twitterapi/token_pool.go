package twitterapi

import (
	"sync"
	"time"
)

// tokenPool rotates bearer tokens round-robin, skipping tokens that are
// cooling down after a 429.
type tokenPool struct {
	mu      sync.Mutex
	tokens  []string
	cooling map[string]time.Time
	idx     int
}

func newTokenPool(tokens []string) *tokenPool {
	return &tokenPool{
		tokens:  tokens,
		cooling: make(map[string]time.Time, len(tokens)),
	}
}

// next returns the next usable token. The second return value is false when
// every token is cooling down.
func (p *tokenPool) next(now time.Time) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.tokens {
		token := p.tokens[p.idx]
		p.idx = (p.idx + 1) % len(p.tokens)
		if until, limited := p.cooling[token]; limited && now.Before(until) {
			continue
		}
		delete(p.cooling, token)
		return token, true
	}
	return "", false
}

// markLimited puts a token into cool-down until the given time.
func (p *tokenPool) markLimited(token string, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooling[token] = until
}

// soonestAvailable reports when the next token leaves cool-down.
func (p *tokenPool) soonestAvailable() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	var soonest time.Time
	for _, until := range p.cooling {
		if soonest.IsZero() || until.Before(soonest) {
			soonest = until
		}
	}
	return soonest
}

// size reports the number of tokens in the pool.
func (p *tokenPool) size() int {
	return len(p.tokens)
}
