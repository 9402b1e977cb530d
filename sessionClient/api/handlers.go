package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/spf13/cast"

	"github.com/pushchain/push-session-bridge/sessionClient/core"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/policy"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

const (
	maxBodyBytes = 1 << 20
	// maxValiditySeconds caps validity_seconds at one year.
	maxValiditySeconds = 365 * 24 * 60 * 60
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleAccount handles GET /api/v1/account
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	acct, err := s.client.Account(r.Context(), sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// handleDeploy handles POST /api/v1/account/deploy
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	acct, err := s.client.Account(r.Context(), sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.client.EnsureAccountDeployed(r.Context(), sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeploymentResponse{AccountAddress: acct.Address, Status: status})
}

// handleListSessionKeys handles GET /api/v1/session-keys
func (s *Server) handleListSessionKeys(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	keys, err := s.client.ListActiveSessionKeys(r.Context(), sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Data: keys, Count: len(keys)})
}

// handleIssueSessionKey handles POST /api/v1/session-keys
func (s *Server) handleIssueSessionKey(w http.ResponseWriter, r *http.Request) {
	var body IssueSessionKeyRequest
	if !s.decode(w, r, &body) {
		return
	}

	kind, err := policy.ParseKind(body.PermissionKind)
	if err != nil {
		s.writeError(w, errors.NewInvalidPolicyError(err.Error()))
		return
	}
	if body.ValiditySeconds < 0 || body.ValiditySeconds > maxValiditySeconds {
		s.writeError(w, errors.NewValidationError("validity_seconds must be between 0 and "+cast.ToString(maxValiditySeconds)))
		return
	}
	req := core.IssueRequest{
		Kind:     kind,
		Validity: time.Duration(body.ValiditySeconds) * time.Second,
		Overrides: policy.Overrides{
			AllowApprovals: body.AllowApprovals,
			AllowedTargets: body.AllowedTargets,
		},
	}
	if body.MaxTransferAmount != nil {
		amount, err := policy.ParseAmount(*body.MaxTransferAmount)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.Overrides.MaxTransferAmount = amount
	}

	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	key, err := s.client.IssueSessionKey(r.Context(), sc, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// handleRevokeSessionKey handles DELETE /api/v1/session-keys/{id}
func (s *Server) handleRevokeSessionKey(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.client.RevokeSessionKey(r.Context(), sc, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute handles POST /api/v1/execute. A reverted operation is
// still a 200 with success=false in the receipt.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteRequest
	if !s.decode(w, r, &body) {
		return
	}

	if body.Target == (common.Address{}) {
		s.writeError(w, errors.NewValidationError("target is required"))
		return
	}
	op := userop.Operation{
		Target:               body.Target,
		Data:                 body.Data,
		RequiresUserApproval: body.RequiresUserApproval,
	}
	if body.Value != "" {
		v, ok := new(big.Int).SetString(body.Value, 10)
		if !ok || v.Sign() < 0 {
			s.writeError(w, errors.NewValidationError("value must be a non-negative decimal integer"))
			return
		}
		op.Value = v
	}

	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	receipt, err := s.client.Execute(r.Context(), sc, op)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleExecutions handles GET /api/v1/executions?limit=<n>
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 {
			s.writeError(w, errors.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	records, err := s.client.Executions(r.Context(), sc, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Data: records, Count: len(records)})
}

// handleGetPreferredWallet handles GET /api/v1/preferred-wallet
func (s *Server) handleGetPreferredWallet(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	resp := PreferredWalletResponse{}
	if addr, found := s.client.PreferredWallet(r.Context(), sc); found {
		resp.Address = &addr
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetPreferredWallet handles PUT /api/v1/preferred-wallet
func (s *Server) handleSetPreferredWallet(w http.ResponseWriter, r *http.Request) {
	var body PreferredWalletRequest
	if !s.decode(w, r, &body) {
		return
	}
	sc, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.client.SetPreferredWallet(r.Context(), sc, body.Address); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferredWalletResponse{Address: &body.Address})
}

// session resolves the caller's session context or writes the error.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (core.SessionContext, bool) {
	sc, err := s.client.CurrentSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return core.SessionContext{}, false
	}
	return sc, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		s.writeError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := errors.CodeOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("code", string(code)).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("code", string(code)).Msg("request rejected")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return 499
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidPolicy, errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case errors.ErrCodeNoAuthorizedSigner:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConfirmationTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeGasSponsorship, errors.ErrCodeDeployment, errors.ErrCodeNetwork, errors.ErrCodeRPC:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

