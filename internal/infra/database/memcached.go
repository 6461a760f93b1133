package database

import (
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedIdleConns = 8

// NewMemcached connects to a comma separated server list. A positive timeout
// replaces the client's 500ms default so a slow cache fails fast.
func NewMemcached(servers string, timeout time.Duration) *memcache.Client {
	var addrs []string
	for _, server := range strings.Split(servers, ",") {
		if server = strings.TrimSpace(server); server != "" {
			addrs = append(addrs, server)
		}
	}

	mc := memcache.New(addrs...)
	mc.MaxIdleConns = memcachedIdleConns
	if timeout > 0 {
		mc.Timeout = timeout
	}
	return mc
}
