package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	errx "github.com/storewise-ai/server/internal/core/error"
	"github.com/storewise-ai/server/internal/ratelimit"
	logx "github.com/storewise-ai/server/pkg/logger"
)

type shopDomainKey struct{}

// ShopFrom returns the authenticated shop domain set by SessionTokenAuth.
func ShopFrom(ctx context.Context) (string, bool) {
	domain, ok := ctx.Value(shopDomainKey{}).(string)
	return domain, ok
}

func withShop(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, shopDomainKey{}, domain)
}

// RequestLogger logs one structured line per request, tagged with the chi
// request id.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logx.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// SessionTokenAuth validates the embedded-app session token from the
// Authorization header. Tokens are HS256-signed with the app secret and carry
// the shop domain in the dest claim.
func SessionTokenAuth(appSecret string) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(appSecret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, r, errx.New(nil, http.StatusUnauthorized, "missing session token"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}),
				jwt.WithExpirationRequired(),
			)
			if err != nil || !token.Valid {
				writeError(w, r, errx.New(err, http.StatusUnauthorized, "invalid session token"))
				return
			}

			domain, err := shopDomainFromDest(claims)
			if err != nil {
				writeError(w, r, errx.New(err, http.StatusUnauthorized, "invalid session token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(withShop(r.Context(), domain)))
		})
	}
}

// shopDomainFromDest extracts the myshopify domain from the dest claim, e.g.
// "https://example.myshopify.com" -> "example.myshopify.com".
func shopDomainFromDest(claims jwt.MapClaims) (string, error) {
	dest, _ := claims["dest"].(string)
	if dest == "" {
		return "", errors.New("dest claim missing")
	}
	domain := strings.TrimPrefix(dest, "https://")
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" || strings.ContainsAny(domain, "/?#") || !strings.HasSuffix(domain, ".myshopify.com") {
		return "", errors.New("dest claim is not a shop domain")
	}
	return domain, nil
}

// RateLimit applies the per-shop sliding window limiter. Limiter errors fail
// open.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			domain, ok := ShopFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			info, err := limiter.Allow(r.Context(), domain)
			if err != nil {
				logx.Error().Err(err).Str("shop_domain", domain).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			if !info.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(info.ResetAt).Seconds())+1, 10))
				writeError(w, r, errx.New(nil, http.StatusTooManyRequests, "too many requests, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
