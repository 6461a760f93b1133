package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/usecase"
	"github.com/nexusholdings/nexus/internal/utils"
)

// CachedLimitEngine stores limit rules in memcached keyed by the inputs that
// determine them. Cache failures fall through to the wrapped engine.
type CachedLimitEngine struct {
	inner usecase.LimitEngine
	mc    *memcache.Client
	ttl   time.Duration
}

func NewCachedLimitEngine(inner usecase.LimitEngine, mc *memcache.Client, ttl time.Duration) *CachedLimitEngine {
	return &CachedLimitEngine{inner: inner, mc: mc, ttl: ttl}
}

func limitCacheKey(profile domain.InvestorProfile, accreditation domain.AccreditationResponse) string {
	international := "domestic"
	if profile.International() {
		international = "international"
	}
	material := strings.Join([]string{
		profile.UserID,
		string(profile.AccreditationStatus),
		international,
		accreditation.ID,
		accreditation.AnnualIncome.String(),
		accreditation.NetWorth.String(),
	}, "|")
	sum := xxh3.HashString128(material).Bytes()
	return "nexus:limit:" + hex.EncodeToString(sum[:])
}

func (c *CachedLimitEngine) CalculateInvestmentLimit(ctx context.Context, profile domain.InvestorProfile, accreditation domain.AccreditationResponse) (*domain.LimitRule, error) {
	key := limitCacheKey(profile, accreditation)

	item, err := c.mc.Get(key)
	if err == nil {
		var rule domain.LimitRule
		if err := json.Unmarshal(item.Value, &rule); err == nil {
			return &rule, nil
		}
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		utils.Warn("limit cache unavailable", utils.ErrorField(err))
	}

	rule, err := c.inner.CalculateInvestmentLimit(ctx, profile, accreditation)
	if err != nil || rule == nil {
		return rule, err
	}

	value, err := json.Marshal(rule)
	if err == nil {
		err = c.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(c.ttl.Seconds())})
	}
	if err != nil {
		utils.Warn("failed to cache limit rule", utils.ErrorField(err))
	}
	return rule, nil
}
