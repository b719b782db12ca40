package cache

import (
	"crypto/md5"
	"fmt"
	"time"
)

// Cache is used by the attention monitor to skip re-analysis of frames
// whose content has not changed between samples.
type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string) (interface{}, bool)
	Exists(key string) bool
	Delete(key string) error
	Close() error
}

// GenerateFrameKey derives a cache key from raw frame bytes. Frames with
// identical pixel content map to the same key.
func GenerateFrameKey(prefix string, data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf("%s:%x", prefix, hash)
}
