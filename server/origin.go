package server

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginValidator decides which browser origins may open a session
type OriginValidator struct {
	allowAll     bool
	allowedHosts map[string]bool
}

// NewOriginValidator accepts origins given as URLs or bare host names. "*"
// allows every origin. With no entries only same-host origins are accepted.
func NewOriginValidator(origins []string) *OriginValidator {
	v := &OriginValidator{allowedHosts: make(map[string]bool)}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			v.allowAll = true
			continue
		}
		if host := hostOf(o); host != "" {
			v.allowedHosts[host] = true
		}
	}
	return v
}

// CheckOrigin is a websocket.Upgrader CheckOrigin function. Requests without
// an Origin header come from non-browser clients and are allowed.
func (v *OriginValidator) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || v.allowAll {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if len(v.allowedHosts) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	return v.IsAllowedHost(u.Hostname())
}

// IsAllowedHost checks host, or any parent domain of it, against the list
func (v *OriginValidator) IsAllowedHost(host string) bool {
	if host == "" {
		return false
	}
	if v.allowAll {
		return true
	}
	lowerHost := strings.ToLower(host)

	if v.allowedHosts[lowerHost] {
		return true
	}
	for allowed := range v.allowedHosts {
		if strings.HasSuffix(lowerHost, "."+allowed) {
			return true
		}
	}
	return false
}

func hostOf(s string) string {
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
