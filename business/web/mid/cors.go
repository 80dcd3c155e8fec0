package mid

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/ardanlabs/crossledger/foundation/web"
)

// Origins is the set of browser origins allowed to call the public API.
// A "*" entry allows any origin.
type Origins []string

// Allows reports whether a request from origin may be answered. Requests
// without an origin don't come from a browser and are always allowed.
func (o Origins) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	return slices.ContainsFunc(o, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}

// Cors sets the headers a browser needs to read the node's responses. Only
// the methods the public routes use are advertised, and Content-Type is the
// only header a wallet has to send.
func Cors(origins Origins) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")

			if origin != "" && origins.Allows(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Add("Vary", "Origin")
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
