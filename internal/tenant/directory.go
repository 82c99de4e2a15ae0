package tenant

import (
	"context"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/tavolohq/tavolo/internal/metrics"
	"github.com/tavolohq/tavolo/internal/validation"
)

// Strategy selects how an inbound request is mapped to a tenant.
type Strategy string

const (
	StrategyDomain    Strategy = "domain"    // exact match on a registered custom domain
	StrategySubdomain Strategy = "subdomain" // first host label, hosts with >2 labels only
	StrategyPath      Strategy = "path"      // first path segment, minus excluded prefixes
)

// Directory resolves inbound requests to tenant slugs. Resolutions are
// cached for the process lifetime; tenant bindings change rarely and
// out-of-band, so callers must ClearCache after administrative changes.
type Directory struct {
	store       Store
	strategy    Strategy
	defaultSlug string
	excluded    map[string]struct{} // path segments, without leading slash
	cache       *cache.Cache
}

// NewDirectory creates a tenant directory using the given resolution
// strategy. excludedPaths entries may carry a leading slash.
func NewDirectory(store Store, strategy Strategy, defaultSlug string, excludedPaths []string) *Directory {
	excluded := make(map[string]struct{}, len(excludedPaths))
	for _, p := range excludedPaths {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p != "" {
			excluded[p] = struct{}{}
		}
	}
	return &Directory{
		store:       store,
		strategy:    strategy,
		defaultSlug: defaultSlug,
		excluded:    excluded,
		cache:       cache.New(cache.NoExpiration, 0),
	}
}

// Resolve maps a request host/path pair to an active tenant slug.
// Returns ErrTenantNotFound when nothing matches and no default slug is
// configured; storage failures propagate as-is.
func (d *Directory) Resolve(ctx context.Context, host, path string) (string, error) {
	rawKey := d.rawKey(host, path)
	if rawKey == "" {
		return d.fallback("miss")
	}

	cacheKey := string(d.strategy) + ":" + rawKey
	if v, ok := d.cache.Get(cacheKey); ok {
		metrics.TenantResolutionsTotal.WithLabelValues(string(d.strategy), "cached").Inc()
		return v.(string), nil
	}

	t, err := d.lookup(ctx, rawKey)
	if err == ErrTenantNotFound {
		return d.fallback("miss")
	}
	if err != nil {
		return "", err
	}
	if !t.Active {
		return d.fallback("inactive")
	}

	// Only positive resolutions are cached so freshly onboarded tenants
	// become visible without an explicit invalidation.
	d.cache.Set(cacheKey, t.Slug, cache.NoExpiration)
	metrics.TenantResolutionsTotal.WithLabelValues(string(d.strategy), "hit").Inc()
	return t.Slug, nil
}

// TenantExists reports whether an active tenant with the slug exists.
// Positive answers are cached.
func (d *Directory) TenantExists(ctx context.Context, slug string) (bool, error) {
	cacheKey := "exists:" + slug
	if _, ok := d.cache.Get(cacheKey); ok {
		return true, nil
	}

	t, err := d.store.GetBySlug(ctx, slug)
	if err == ErrTenantNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !t.Active {
		return false, nil
	}

	d.cache.Set(cacheKey, true, cache.NoExpiration)
	return true, nil
}

// ClearCache drops all cached resolutions. Call after tenant slug or
// domain bindings change.
func (d *Directory) ClearCache() {
	d.cache.Flush()
}

// rawKey extracts the strategy-specific lookup key from the request,
// or "" when the request cannot name a tenant under this strategy.
func (d *Directory) rawKey(host, path string) string {
	switch d.strategy {
	case StrategyDomain:
		return stripPort(host)
	case StrategySubdomain:
		h := stripPort(host)
		labels := strings.Split(h, ".")
		// Naked domains ("example.com") carry no tenant label.
		if len(labels) <= 2 {
			return ""
		}
		label := strings.ToLower(labels[0])
		// A malformed label ("-foo", "a_b") can never match a slug, so
		// do not spend a lookup on it.
		if !validation.IsValidHostLabel(label) {
			return ""
		}
		return label
	case StrategyPath:
		seg := firstSegment(path)
		if seg == "" {
			return ""
		}
		if _, skip := d.excluded[seg]; skip {
			return ""
		}
		return seg
	}
	return ""
}

func (d *Directory) lookup(ctx context.Context, rawKey string) (*Tenant, error) {
	if d.strategy == StrategyDomain {
		return d.store.GetByDomain(ctx, rawKey)
	}
	return d.store.GetBySlug(ctx, rawKey)
}

func (d *Directory) fallback(result string) (string, error) {
	metrics.TenantResolutionsTotal.WithLabelValues(string(d.strategy), result).Inc()
	if d.defaultSlug != "" {
		return d.defaultSlug, nil
	}
	return "", ErrTenantNotFound
}

func stripPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func firstSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return strings.ToLower(seg)
		}
	}
	return ""
}
