package middleware

import (
	"context"
	"net/http"
	"strings"

	goFactor "github.com/MrEthical07/goFactor"
)

// ReceiptHeader carries a verification receipt when Authorization is already
// used by a primary session token.
const ReceiptHeader = "X-Verification-Receipt"

type receiptContextKey struct{}

// ReceiptParser is satisfied by *goFactor.Engine.
type ReceiptParser interface {
	ParseReceipt(token string) (*goFactor.ReceiptClaims, error)
}

// Options narrows which receipts a Guard accepts.
type Options struct {
	// Factors lists accepted factor kinds. Empty accepts any factor.
	Factors []goFactor.FactorKind
	// Principal, when set, returns the principal the request acts for; the
	// receipt subject must match it.
	Principal func(r *http.Request) string
}

// ClaimsFromContext returns the receipt claims stored by a Guard.
func ClaimsFromContext(ctx context.Context) (*goFactor.ReceiptClaims, bool) {
	claims, ok := ctx.Value(receiptContextKey{}).(*goFactor.ReceiptClaims)
	return claims, ok
}

// Guard rejects requests without a valid receipt with 401, and receipts for
// the wrong factor or principal with 403.
func Guard(parser ReceiptParser, opts Options) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(opts.Factors))
	for _, k := range opts.Factors {
		allowed[k.String()] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := receiptToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := parser.ParseReceipt(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[claims.Factor]; !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			if opts.Principal != nil && opts.Principal(r) != claims.Principal() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), receiptContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFactor accepts only receipts for one of kinds.
func RequireFactor(engine *goFactor.Engine, kinds ...goFactor.FactorKind) func(http.Handler) http.Handler {
	var parser ReceiptParser
	if engine != nil {
		parser = engine
	}
	return Guard(parser, Options{Factors: kinds})
}

func receiptToken(r *http.Request) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get(ReceiptHeader)); v != "" {
		return v, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
