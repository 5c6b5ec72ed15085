package handlers

import (
	"bytes"

	"github.com/nimasrn/debt-ledger/internal/model"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/nimasrn/debt-ledger/pkg/logger"
)

const principalKey = "principal"

var bearerPrefix = []byte("Bearer ")

type TokenVerifier interface {
	Principal(token string) (model.Principal, error)
}

// Authenticator resolves the bearer token of a request to the acting
// principal.
type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Require rejects requests without a valid bearer token with 401 and
// stores the principal on the request otherwise.
func (a *Authenticator) Require(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		header := ctx.Request.Header.Peek("Authorization")
		if !bytes.HasPrefix(header, bearerPrefix) {
			writeError(ctx, xhttp.StatusUnauthorized, "missing bearer token")
			return
		}

		p, err := a.verifier.Principal(string(bytes.TrimSpace(header[len(bearerPrefix):])))
		if err != nil {
			logger.Debug("rejected bearer token", "path", string(ctx.Path()), "error", err)
			writeError(ctx, xhttp.StatusUnauthorized, "invalid bearer token")
			return
		}

		ctx.SetUserValue(principalKey, p)
		next(ctx)
	}
}
