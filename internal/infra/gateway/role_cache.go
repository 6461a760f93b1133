package gateway

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nexusholdings/nexus/internal/usecase"
)

// CachedRoleChecker memoizes role answers for a short TTL. Errors are not cached.
type CachedRoleChecker struct {
	inner usecase.RoleChecker
	cache *cache.Cache
}

func NewCachedRoleChecker(inner usecase.RoleChecker, ttl time.Duration) *CachedRoleChecker {
	return &CachedRoleChecker{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedRoleChecker) IsSubsidiaryAdmin(ctx context.Context, userID, subsidiaryID string) (bool, error) {
	return c.lookup("admin:"+subsidiaryID+":"+userID, func() (bool, error) {
		return c.inner.IsSubsidiaryAdmin(ctx, userID, subsidiaryID)
	})
}

func (c *CachedRoleChecker) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	return c.lookup("super:"+userID, func() (bool, error) {
		return c.inner.IsSuperAdmin(ctx, userID)
	})
}

func (c *CachedRoleChecker) lookup(key string, fetch func() (bool, error)) (bool, error) {
	if x, found := c.cache.Get(key); found {
		return x.(bool), nil
	}
	ok, err := fetch()
	if err != nil {
		return false, err
	}
	c.cache.Set(key, ok, cache.DefaultExpiration)
	return ok, nil
}
