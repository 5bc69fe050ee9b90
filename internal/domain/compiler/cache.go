package compiler

import (
	"fmt"

	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of compile results kept by default
const DefaultCacheSize = 256

// CachedCompiler memoizes compile results by content digest. Concurrent
// compiles of the same source share one underlying compile.
type CachedCompiler struct {
	compiler *Compiler
	cache    *lru.Cache[string, Result]
	group    singleflight.Group
	hasher   *utils.Hasher
	metrics  *monitoring.Metrics
}

// NewCached wraps c with an LRU of the given size
func NewCached(c *Compiler, size int) (*CachedCompiler, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("create compile cache: %w", err)
	}
	return &CachedCompiler{
		compiler: c,
		cache:    cache,
		hasher:   utils.DefaultHasher(),
		metrics:  c.metrics,
	}, nil
}

// CompileSource is Compiler.CompileSource with memoization
func (cc *CachedCompiler) CompileSource(src string) (Result, error) {
	if len(src) > MaxSourceBytes {
		return Result{}, ErrSourceTooLong
	}
	return cc.Compile(src), nil
}

// Compile returns the cached result for src or compiles it
func (cc *CachedCompiler) Compile(src string) Result {
	key := cc.hasher.HashString(src)

	if res, ok := cc.cache.Get(key); ok {
		cc.recordLookup(true)
		return res
	}
	cc.recordLookup(false)

	v, _, _ := cc.group.Do(key, func() (interface{}, error) {
		cc.compiler.logger.Debug("Compile cache miss", zap.String("key", utils.ShortHash(key)))
		res := cc.compiler.Compile(src)
		cc.cache.Add(key, res)
		return res, nil
	})
	return v.(Result)
}

// Len returns the number of cached results
func (cc *CachedCompiler) Len() int {
	return cc.cache.Len()
}

// Purge drops every cached result
func (cc *CachedCompiler) Purge() {
	cc.cache.Purge()
}

func (cc *CachedCompiler) recordLookup(hit bool) {
	if cc.metrics != nil {
		cc.metrics.RecordCacheLookup(hit)
	}
}
