package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// AccountHeader carries the caller account id set by the upstream gateway.
const AccountHeader = "X-Account-ID"

type accountKey struct{}

// ContextWithAccount stores the account id on ctx.
func ContextWithAccount(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, accountKey{}, id)
}

// AccountFromContext returns the account id stored by RequireAccount.
func AccountFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(accountKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// RequireAccount rejects requests without a well-formed account header.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(AccountHeader))
		id, err := uuid.Parse(raw)
		if raw == "" || err != nil || id == uuid.Nil {
			RespondError(w, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), id)))
	})
}
