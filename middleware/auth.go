package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/clip-job-server/errors"
)

// IsAuthorized checks the X-API-KEY header against the single configured
// shared secret (§6). /healthz and /version bypass this middleware entirely.
func IsAuthorized(apiToken string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		key := r.Header.Get("X-API-KEY")

		if key == "" {
			errors.WriteHTTPUnauthorized(w, "missing X-API-KEY header", nil)
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiToken)) != 1 {
			errors.WriteHTTPUnauthorized(w, "invalid X-API-KEY", nil)
			return
		}

		next(w, r, ps)
	}
}
