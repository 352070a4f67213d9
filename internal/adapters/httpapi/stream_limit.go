package httpapi

import "sync"

type StreamLimits struct {
	MaxGlobal    int
	MaxPerClient int
}

func (c StreamLimits) withDefaults() StreamLimits {
	if c.MaxGlobal <= 0 {
		c.MaxGlobal = 4096
	}
	if c.MaxPerClient <= 0 {
		c.MaxPerClient = 8
	}
	return c
}

type streamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func newStreamLimiter(cfg StreamLimits) *streamLimiter {
	cfg = cfg.withDefaults()
	return &streamLimiter{
		maxGlobal:    cfg.MaxGlobal,
		maxPerClient: cfg.MaxPerClient,
		byClient:     make(map[string]int),
	}
}

// acquire reserves a stream slot; the returned func releases it.
func (l *streamLimiter) acquire(clientKey string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[clientKey] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[clientKey]++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.global--
			if next := l.byClient[clientKey] - 1; next > 0 {
				l.byClient[clientKey] = next
			} else {
				delete(l.byClient, clientKey)
			}
		})
	}, true
}
