package pattern

import (
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// regexCache 进程级正则缓存，同一模式只编译一次
var regexCache = &cache{entries: make(map[string]*regexp2.Regexp)}

type cache struct {
	mu      sync.RWMutex
	entries map[string]*regexp2.Regexp
}

func (c *cache) get(pattern string) (*regexp2.Regexp, error) {
	c.mu.RLock()
	re, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = time.Second
	c.mu.Lock()
	c.entries[pattern] = re
	c.mu.Unlock()
	return re, nil
}
