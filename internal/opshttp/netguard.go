package opshttp

import (
	"net"
	"net/http"

	"github.com/rgeddes/contentd/internal/log"
)

// requireNonPublicNetwork rejects requests whose peer address is not
// loopback, private (RFC 1918 / ULA), or link-local. Anything unparseable
// is rejected too.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			deny(L, w, r, r.RemoteAddr)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil {
			deny(L, w, r, host)
			return
		}
		// Unmap so ::ffff:10.0.0.1 is judged as its IPv4 form.
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			next.ServeHTTP(w, r)
			return
		}
		deny(L, w, r, ip.String())
	})
}

func deny(L log.Logger, w http.ResponseWriter, r *http.Request, peer string) {
	L.Warn(r.Context(), "ops request from non-private peer refused", "peer", peer, "path", r.URL.Path)
	http.Error(w, "forbidden", http.StatusForbidden)
}
