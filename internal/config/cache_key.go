package config

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ContentMetaKey returns the cache key for the currently published content pack metadata
func (r *CacheKeyStruct) ContentMetaKey() string {
	return "content:meta:current"
}

var CacheKey = NewCacheKeyStruct()
