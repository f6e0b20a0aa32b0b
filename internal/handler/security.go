package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

// HeaderAPIKey carries staff API keys. "Authorization: Bearer <key>" is
// accepted as well.
const HeaderAPIKey = "X-API-Key"

var errUnauthorized = errors.New("unauthorized")

// Authenticator resolves staff API keys. Keys are looked up by their
// HMAC-SHA256 under a server side pepper and compared in constant time.
type Authenticator struct {
	keys   auth.Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate returns the key presented by r.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.APIKeyInfo, error) {
	raw := presentedKey(r)
	if raw == "" {
		return nil, errUnauthorized
	}
	sum := auth.HashKey(a.pepper, raw)

	info, err := a.keys.FindByHash(ctx, sum)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			zctx.From(ctx).Error("Look up api key", zap.Error(err))
		}
		return nil, errUnauthorized
	}
	want, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errUnauthorized
	}
	got, _ := hex.DecodeString(sum)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

// Require admits requests carrying a key with every listed scope and stores
// the key in the request context.
func (a *Authenticator) Require(scopes ...string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := a.Authenticate(r.Context(), r)
			if err != nil {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "missing or invalid api key")
				return
			}
			for _, s := range scopes {
				if !info.HasScope(s) {
					httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+s)
					return
				}
			}
			ctx := auth.WithKey(r.Context(), info)
			ctx = zctx.With(ctx, zap.String("api_key", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// actor names the authenticated staff member for timeline entries.
func actor(ctx context.Context) string {
	if k, ok := auth.FromContext(ctx); ok {
		if k.Name != "" {
			return k.Name
		}
		return k.ID
	}
	return ""
}
