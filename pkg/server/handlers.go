package server

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Layr-Labs/usdf-signer/pkg/types"
	"github.com/pkg/errors"
)

// decodeJSON reads exactly one JSON value from the body; trailing data is rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err != nil {
			return bodyError(err)
		}
		return errors.New("invalid request body: unexpected data after JSON value")
	}
	return nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.Errorf("request body exceeds %d bytes", maxErr.Limit)
	}
	return errors.Wrap(err, "invalid request body")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Whitelist(r.Context())
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.PublicKeyResponse{PublicKey: s.service.PublicKey()})
}

// handleGetEstimation returns the settlement amount as a bare decimal string.
func (s *Server) handleGetEstimation(w http.ResponseWriter, r *http.Request) {
	var req types.EstimationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	amount, err := s.service.Estimate(r.Context(), &req)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(amount.String()))
}

func (s *Server) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	var req types.SigningRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	att, err := s.service.SignRequest(r.Context(), &req)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.SignatureResponse{
		Nonce:      strconv.FormatUint(att.Nonce, 10),
		UsdfAmount: att.SettlementAmount.String(),
		Signature:  hex.EncodeToString(att.Signature),
	})
}
