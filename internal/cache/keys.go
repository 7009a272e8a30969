package cache

import (
	"fmt"
	"time"
)

// RateLimitKey buckets a client's requests into fixed windows.
func RateLimitKey(clientKey string, window time.Time) string {
	return fmt.Sprintf("findoc:ratelimit:%s:%d", clientKey, window.Unix())
}

func SearchResultKey(queryHash string) string {
	return fmt.Sprintf("findoc:search:%s", queryHash)
}
