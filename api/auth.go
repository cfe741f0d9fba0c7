package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/stock-ledger/ledger"
)

type actorKey struct{}

// Claims is the JWT payload issued by the identity service.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Superuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

// DevActor acts for every request when no signing secret is configured,
// which config only allows in the dev environment.
var DevActor = ledger.Actor{UserID: 1, Name: "dev", Superuser: true}

// ActorFrom returns the authenticated actor stored in ctx.
func ActorFrom(ctx context.Context) (ledger.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(ledger.Actor)
	return a, ok
}

func withActor(ctx context.Context, a ledger.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// Authenticate is middleware that validates the bearer token and injects
// the actor into the request context. Returns 401 when the token is
// absent or invalid.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r.WithContext(withActor(r.Context(), DevActor)))
				return
			}

			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "authentication required", nil)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.UserID == 0 {
				writeError(w, http.StatusUnauthorized, "invalid or expired token", nil)
				return
			}

			actor := ledger.Actor{
				UserID:    ledger.UserID(claims.UserID),
				Name:      claims.Name,
				Superuser: claims.Superuser,
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

// IssueToken signs a token for actor. The service itself never logs users
// in; this is used by tests and local tooling.
func IssueToken(secret string, actor ledger.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    int64(actor.UserID),
		Name:      actor.Name,
		Superuser: actor.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// actor returns the request's actor. Authenticate guarantees one on every
// /api/warehouse route.
func actor(r *http.Request) ledger.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
