package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/server/auth"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// authenticate requires a valid access credential in the Authorization
// header and stores its subject in the request context.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeader)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		subject, err := s.issuer.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, common.ErrInvalidCredential.Error())
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFrom(ctx context.Context) (auth.Subject, bool) {
	s, ok := ctx.Value(subjectKey).(auth.Subject)
	return s, ok
}
