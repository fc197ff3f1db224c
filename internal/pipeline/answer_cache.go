package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultAnswerEntries bounds the answer cache when not configured.
const defaultAnswerEntries = 256

// answerCache memoizes attributed answers keyed by normalized question and
// corpus version. A corpus change moves the version forward, so stale
// answers are never served; they age out of the LRU.
type answerCache struct {
	cache *expirable.LRU[string, QueryResult]
}

func newAnswerCache(enabled bool, maxEntries int, ttl time.Duration) *answerCache {
	c := &answerCache{}
	if enabled {
		if maxEntries <= 0 {
			maxEntries = defaultAnswerEntries
		}
		c.cache = expirable.NewLRU[string, QueryResult](maxEntries, nil, ttl)
	}
	return c
}

// answerKey normalizes the question (case and whitespace insensitive) and
// binds it to the corpus version.
func answerKey(question string, version uint64) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s:%d", hex.EncodeToString(sum[:]), version)
}

func (c *answerCache) get(question string, version uint64) (QueryResult, bool) {
	if c.cache == nil {
		return QueryResult{}, false
	}
	return c.cache.Get(answerKey(question, version))
}

func (c *answerCache) put(question string, version uint64, result QueryResult) {
	if c.cache == nil {
		return
	}
	c.cache.Add(answerKey(question, version), result)
}
