package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type principalKey struct{}

// principal is the authenticated caller of a request.
type principal struct {
	UserID string
}

var (
	errNoCredentials  = errors.New("no bearer credentials")
	errMalformedToken = errors.New("authorization header is not a bearer token")
)

// authenticated rejects requests without a valid token and stores the caller on the context.
func (r *Router) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		raw, err := credentials(req)
		if err != nil {
			r.logger.Warn("request without credentials", "path", req.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := r.signer.Verify(raw)
		if err != nil {
			r.logger.Warn("rejected bearer token", "path", req.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		ctx := context.WithValue(req.Context(), principalKey{}, principal{UserID: claims.UserID})
		if rec, ok := w.(*statusRecorder); ok {
			rec.caller = claims.UserID
		}
		next(w, req.WithContext(ctx))
	}
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// credentials reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrades may carry ?access_token= instead.
func credentials(req *http.Request) (string, error) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
			if token := strings.TrimSpace(req.URL.Query().Get("access_token")); token != "" {
				return token, nil
			}
		}
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", errMalformedToken
	}
	return token, nil
}
