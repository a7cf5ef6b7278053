package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/safe-signing-gate/interfaces"
	"github.com/ruteri/safe-signing-gate/proposal"
	"github.com/ruteri/safe-signing-gate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVerifier implements interfaces.ConditionVerifier for testing
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyPolicy(ctx context.Context, endpoint string, config map[string]any) bool {
	args := m.Called(ctx, endpoint, config)
	return args.Bool(0)
}

func (m *MockVerifier) VerifyTestsPassed(ctx context.Context, url string) bool {
	args := m.Called(ctx, url)
	return args.Bool(0)
}

func (m *MockVerifier) VerifyPRMerged(ctx context.Context, owner, repo string, prNumber int, token string) bool {
	args := m.Called(ctx, owner, repo, prNumber, token)
	return args.Bool(0)
}

// MockExecutor implements interfaces.SigningExecutor for testing
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Sign(ctx context.Context, dataToSign []byte, publicKey string, sigName string) error {
	args := m.Called(ctx, dataToSign, publicKey, sigName)
	return args.Error(0)
}

func newTestHandler(t *testing.T, verifier *MockVerifier, executor *MockExecutor, bundles interfaces.StorageBackend) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder, err := proposal.NewBuilder("0x1111111111111111111111111111111111111111", 1, logger)
	require.NoError(t, err)
	return NewHandler(builder, verifier, executor, bundles, logger)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w.Result()
}

func TestHandleDeploymentProposal_Success(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	resp := postJSON(t, handler.HandleDeploymentProposal, "/api/v1/proposal/deployment", interfaces.DeploymentRequest{
		ContractName: "Counter",
		Bytecode:     "0x6080604052",
		Metadata:     map[string]string{"pr": "42"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result deploymentProposalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, interfaces.ZeroAddress.String(), result.Proposal.To)
	assert.Equal(t, "0", result.Proposal.Value)
	assert.Equal(t, "0x6080604052", result.Proposal.Data)
	assert.Equal(t, "42", result.Metadata.PR)
	assert.NotEmpty(t, result.ValidationHash)
}

func TestHandleDeploymentProposal_InvalidBytecode(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	resp := postJSON(t, handler.HandleDeploymentProposal, "/api/v1/proposal/deployment", interfaces.DeploymentRequest{
		ContractName: "Broken",
		Bytecode:     "0xnothex",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDeploymentProposal_MalformedBody(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proposal/deployment", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	handler.HandleDeploymentProposal(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandleUpgradeProposal(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	resp := postJSON(t, handler.HandleUpgradeProposal, "/api/v1/proposal/upgrade", interfaces.UpgradeRequest{
		ProxyAddress:      "0x3333333333333333333333333333333333333333",
		NewImplementation: "0x4444444444444444444444444444444444444444",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result upgradeProposalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "0x3333333333333333333333333333333333333333", result.Proposal.To)
	assert.Contains(t, result.Proposal.Data, "3659cfe6")
}

func TestHandleUpgradeProposal_InvalidProxy(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	resp := postJSON(t, handler.HandleUpgradeProposal, "/api/v1/proposal/upgrade", interfaces.UpgradeRequest{
		ProxyAddress:      "0xZZ",
		NewImplementation: "0x4444444444444444444444444444444444444444",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleValidateProposal(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	// Valid proposals report valid=true and carry the canonical hash.
	resp := postJSON(t, handler.HandleValidateProposal, "/api/v1/proposal/validate", interfaces.SafeTransactionProposal{
		To:        "0x2222222222222222222222222222222222222222",
		Value:     "0",
		Data:      "0xdeadbeef",
		Operation: interfaces.OperationCall,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result validateProposalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.ValidationHash)

	// Malformed proposals still answer 200, with valid=false.
	resp = postJSON(t, handler.HandleValidateProposal, "/api/v1/proposal/validate", interfaces.SafeTransactionProposal{
		To:    "0x1234",
		Value: "-1",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = validateProposalResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Valid)
	assert.Empty(t, result.ValidationHash)
}

func TestHandleGateSign_Approved(t *testing.T) {
	verifier := new(MockVerifier)
	executor := new(MockExecutor)
	executor.On("Sign", mock.Anything, mock.Anything, "pubkey", "sig1").Return(nil)

	handler := newTestHandler(t, verifier, executor, nil)

	resp := postJSON(t, handler.HandleGateSign, "/api/v1/gate/sign", map[string]any{
		"dataToSign": "0xdeadbeef",
		"publicKey":  "pubkey",
		"sigName":    "sig1",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result interfaces.SigningResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	executor.AssertExpectations(t)
}

func TestHandleGateSign_Denied(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyTestsPassed", mock.Anything, "http://ci/results").Return(false)
	executor := new(MockExecutor)

	handler := newTestHandler(t, verifier, executor, nil)

	resp := postJSON(t, handler.HandleGateSign, "/api/v1/gate/sign", map[string]any{
		"dataToSign": "0xdeadbeef",
		"publicKey":  "pubkey",
		"sigName":    "sig1",
		"conditions": map[string]any{"requireTests": true},
		"params":     map[string]any{"tests": map[string]any{"resultsUrl": "http://ci/results"}},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var result interfaces.SigningResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.False(t, result.VerificationResults.TestsPassed)

	executor.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleGateSign_CustodyFault(t *testing.T) {
	verifier := new(MockVerifier)
	executor := new(MockExecutor)
	executor.On("Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("custody network returned error 500"))

	handler := newTestHandler(t, verifier, executor, nil)

	resp := postJSON(t, handler.HandleGateSign, "/api/v1/gate/sign", map[string]any{
		"dataToSign": "0xdeadbeef",
		"publicKey":  "pubkey",
		"sigName":    "sig1",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	executor.AssertNumberOfCalls(t, "Sign", 1)
}

func TestHandleGateSign_InvalidInput(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	resp := postJSON(t, handler.HandleGateSign, "/api/v1/gate/sign", map[string]any{
		"dataToSign": "",
		"publicKey":  "pubkey",
		"sigName":    "sig1",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBundleFetch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	bundle := []byte(`{"code":"gate bundle"}`)
	id, err := backend.Store(context.Background(), bundle, interfaces.BundleType)
	require.NoError(t, err)

	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), backend)

	mux := chi.NewRouter()
	mux.Get("/api/v1/bundle/{content_id}", handler.HandleBundleFetch)

	// Stored bundle is served back byte for byte.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bundle/"+id.String(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, bundle, w.Body.Bytes())

	// Unknown content id answers 404.
	missing := interfaces.ComputeID([]byte("never stored"))
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bundle/"+missing.String(), nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)

	// Malformed content id answers 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bundle/zz", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandleBundleFetch_NoStorageConfigured(t *testing.T) {
	handler := newTestHandler(t, new(MockVerifier), new(MockExecutor), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bundle/abc", nil)
	w := httptest.NewRecorder()
	handler.HandleBundleFetch(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}
