package server

import (
	"encoding/json"
	"net/http"

	"github.com/Layr-Labs/usdf-signer/pkg/nonce"
	"github.com/Layr-Labs/usdf-signer/pkg/persistence"
	"github.com/Layr-Labs/usdf-signer/pkg/pricing"
	"github.com/Layr-Labs/usdf-signer/pkg/signer"
	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
)

// Error codes returned in the error body.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnknownToken       = "UNKNOWN_TOKEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeMalformedQuote     = "MALFORMED_QUOTE"
	CodeArithmeticOverflow = "ARITHMETIC_OVERFLOW"
	CodeNonceOverflow      = "NONCE_OVERFLOW"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeKeyUnavailable     = "KEY_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// classify maps a core error to an HTTP status, error code and client facing message.
// Server side failures get a fixed message; the full error is only logged.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, signer.ErrInvalidRequest), errors.Is(err, types.ErrAmountOutOfRange):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, pricing.ErrUnknownToken):
		return http.StatusBadRequest, CodeUnknownToken, err.Error()
	case errors.Is(err, pricing.ErrMalformedQuote):
		return http.StatusInternalServerError, CodeMalformedQuote, "price quote is malformed"
	case errors.Is(err, pricing.ErrArithmeticOverflow):
		return http.StatusInternalServerError, CodeArithmeticOverflow, "settlement amount overflows"
	case errors.Is(err, nonce.ErrNonceOverflow):
		return http.StatusInternalServerError, CodeNonceOverflow, "nonce space exhausted"
	case errors.Is(err, nonce.ErrPersistFailed), errors.Is(err, persistence.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable"
	case errors.Is(err, signer.ErrKeyUnavailable):
		return http.StatusInternalServerError, CodeKeyUnavailable, "signing key unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, types.ErrorResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Error: types.ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed",
			"requestId", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
	}
	writeError(w, r, status, code, message)
}
