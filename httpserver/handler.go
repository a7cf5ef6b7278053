package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/ruteri/safe-signing-gate/metrics"
	"github.com/ruteri/safe-signing-gate/proposal"
	"github.com/ruteri/safe-signing-gate/sandbox"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the signing gate service. It exposes
// the proposal builder, hosts server-side gate invocations, and serves
// published bundles.
type Handler struct {
	builder  *proposal.Builder
	verifier interfaces.ConditionVerifier
	executor interfaces.SigningExecutor
	bundles  interfaces.StorageBackend
	log      *slog.Logger
}

// NewHandler creates a request handler. The bundle backend may be nil, in
// which case bundle fetches fail with 503.
func NewHandler(builder *proposal.Builder, verifier interfaces.ConditionVerifier, executor interfaces.SigningExecutor, bundles interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		builder:  builder,
		verifier: verifier,
		executor: executor,
		bundles:  bundles,
		log:      log,
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "could not read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.log.Debug("Could not parse request body", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Could not write response", "err", err)
	}
}

// deploymentProposalResponse is returned by the deployment proposal endpoint.
type deploymentProposalResponse struct {
	Proposal       interfaces.SafeTransactionProposal `json:"proposal"`
	Metadata       interfaces.BuildMetadata           `json:"metadata"`
	ValidationHash string                             `json:"validationHash"`
}

// HandleDeploymentProposal builds a deployment proposal.
//
// URL: POST /api/v1/proposal/deployment
func (h *Handler) HandleDeploymentProposal(w http.ResponseWriter, r *http.Request) {
	var req interfaces.DeploymentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	prop, metadata, err := h.builder.CreateDeploymentProposal(&req)
	if err != nil {
		status := http.StatusBadRequest
		h.log.Info("Rejected deployment request", "err", err,
			slog.String("contract", req.ContractName))
		http.Error(w, err.Error(), status)
		return
	}

	metrics.ProposalsBuilt.Inc()
	h.writeJSON(w, http.StatusOK, deploymentProposalResponse{
		Proposal:       *prop,
		Metadata:       metadata,
		ValidationHash: h.builder.GenerateValidationHash(prop),
	})
}

// upgradeProposalResponse is returned by the upgrade proposal endpoint.
type upgradeProposalResponse struct {
	Proposal       interfaces.SafeTransactionProposal `json:"proposal"`
	ValidationHash string                             `json:"validationHash"`
}

// HandleUpgradeProposal builds a proxy upgrade proposal.
//
// URL: POST /api/v1/proposal/upgrade
func (h *Handler) HandleUpgradeProposal(w http.ResponseWriter, r *http.Request) {
	var req interfaces.UpgradeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	prop, err := h.builder.CreateUpgradeProposal(&req)
	if err != nil {
		h.log.Info("Rejected upgrade request", "err", err,
			slog.String("proxy", req.ProxyAddress))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.ProposalsBuilt.Inc()
	h.writeJSON(w, http.StatusOK, upgradeProposalResponse{
		Proposal:       *prop,
		ValidationHash: h.builder.GenerateValidationHash(prop),
	})
}

// validateProposalResponse is returned by the validation endpoint.
type validateProposalResponse struct {
	Valid          bool   `json:"valid"`
	ValidationHash string `json:"validationHash,omitempty"`
}

// HandleValidateProposal validates proposal shape and returns its canonical
// hash. Validation is pure; malformed proposals yield valid=false, never an
// error status.
//
// URL: POST /api/v1/proposal/validate
func (h *Handler) HandleValidateProposal(w http.ResponseWriter, r *http.Request) {
	var prop interfaces.SafeTransactionProposal
	if !h.decodeBody(w, r, &prop) {
		return
	}

	resp := validateProposalResponse{Valid: h.builder.ValidateProposal(&prop)}
	if resp.Valid {
		resp.ValidationHash = h.builder.GenerateValidationHash(&prop)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGateSign hosts one signing-gate invocation. The response body is the
// gate's structured result; the status code distinguishes a correct denial
// (403) from an input fault (400) and a custody fault (502).
//
// URL: POST /api/v1/gate/sign
func (h *Handler) HandleGateSign(w http.ResponseWriter, r *http.Request) {
	var input sandbox.SigningInput
	if !h.decodeBody(w, r, &input) {
		return
	}

	resp, err := sandbox.Run(r.Context(), &input, sandbox.Dependencies{
		Verifier: h.verifier,
		Executor: h.executor,
		Emitter:  &discardEmitter{},
		Log:      h.log,
	})

	switch {
	case err == nil:
		metrics.GateApprovals.Inc()
		h.writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, interfaces.ErrConditionsNotMet):
		metrics.GateDenials.Inc()
		h.writeJSON(w, http.StatusForbidden, resp)
	case errors.Is(err, interfaces.ErrSigningFailed):
		metrics.GateSignFailures.Inc()
		h.writeJSON(w, http.StatusBadGateway, resp)
	default:
		h.writeJSON(w, http.StatusBadRequest, resp)
	}
}

// HandleBundleFetch serves a published signing bundle by content id.
//
// URL: GET /api/v1/bundle/{content_id}
func (h *Handler) HandleBundleFetch(w http.ResponseWriter, r *http.Request) {
	if h.bundles == nil {
		http.Error(w, "bundle storage not configured", http.StatusServiceUnavailable)
		return
	}

	id, err := interfaces.NewContentIDFromHex(r.PathValue("content_id"))
	if err != nil {
		http.Error(w, "invalid content id", http.StatusBadRequest)
		return
	}

	data, err := h.bundles.Fetch(r.Context(), id, interfaces.BundleType)
	if err != nil {
		if errors.Is(err, interfaces.ErrContentNotFound) {
			http.Error(w, "bundle not found", http.StatusNotFound)
			return
		}
		h.log.Error("Could not fetch bundle", "err", err, slog.String("content_id", id.String()))
		http.Error(w, "bundle fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// discardEmitter satisfies the sandbox emitter for server-hosted invocations,
// where the HTTP response is the output channel.
type discardEmitter struct{}

func (discardEmitter) EmitResponse(string) error { return nil }
