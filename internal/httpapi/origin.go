package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// originPolicy decides which browser origins may open a WebSocket. An empty
// list allows any origin; requests without an Origin header (native clients)
// are always allowed.
type originPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	normalized := lo.FilterMap(origins, func(o string, _ int) (string, bool) {
		return normalizeOrigin(o)
	})
	p := originPolicy{
		allowAll: len(origins) == 0 || lo.Contains(origins, "*"),
		origins:  make(map[string]struct{}, len(normalized)),
	}
	for _, o := range normalized {
		p.origins[o] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p originPolicy) allowed(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	o, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, ok = p.origins[o]
	return ok
}
