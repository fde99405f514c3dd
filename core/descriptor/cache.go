package descriptor

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/jflow-project/jflow/metrics"
)

var (
	cacheHitCounter  = metrics.NewRegisteredCounter("descriptor/cache/hit", nil)
	cacheMissCounter = metrics.NewRegisteredCounter("descriptor/cache/miss", nil)
)

// DefaultCacheSize is the number of parsed method descriptors kept by Cache
// unless configured otherwise.
const DefaultCacheSize = 4096

// Cache memoizes parsed method descriptors. Methods of one class tend to share
// descriptors, so a batch analysis parses each one only once. Cache is safe for
// concurrent use and the returned Method values must not be modified.
type Cache struct {
	methods *lru.Cache
}

// NewCache creates a cache holding up to size descriptors.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{methods: c}, nil
}

// Method returns the parsed descriptor, parsing it on a miss. Parse failures
// are not cached.
func (c *Cache) Method(desc string) (*Method, error) {
	if v, ok := c.methods.Get(desc); ok {
		cacheHitCounter.Inc(1)
		return v.(*Method), nil
	}
	cacheMissCounter.Inc(1)
	m, err := ParseMethod(desc)
	if err != nil {
		return nil, err
	}
	c.methods.Add(desc, m)
	return m, nil
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	return c.methods.Len()
}
