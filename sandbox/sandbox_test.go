package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/safe-signing-gate/interfaces"
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

func testDeps(verifier *MockVerifier, executor *MockExecutor, out io.Writer) Dependencies {
	return Dependencies{
		Verifier: verifier,
		Executor: executor,
		Emitter:  &WriterEmitter{W: out},
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSigningInputValidate(t *testing.T) {
	valid := SigningInput{
		DataToSign: "0xdeadbeef",
		PublicKey:  "pubkey",
		SigName:    "sig1",
	}

	tests := []struct {
		name    string
		mutate  func(in *SigningInput)
		wantErr string
	}{
		{"well-formed", func(in *SigningInput) {}, ""},
		{"unprefixed hex", func(in *SigningInput) { in.DataToSign = "deadbeef" }, ""},
		{"empty data", func(in *SigningInput) { in.DataToSign = "" }, "dataToSign is required"},
		{"prefix only", func(in *SigningInput) { in.DataToSign = "0x" }, "dataToSign is required"},
		{"non-hex data", func(in *SigningInput) { in.DataToSign = "0xzz" }, "not valid hex"},
		{"missing public key", func(in *SigningInput) { in.PublicKey = "" }, "publicKey is required"},
		{"missing sig name", func(in *SigningInput) { in.SigName = "" }, "sigName is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRun_InvalidInputEmitsFailure(t *testing.T) {
	verifier := new(MockVerifier)
	executor := new(MockExecutor)
	var out bytes.Buffer

	resp, err := Run(context.Background(), &SigningInput{}, testDeps(verifier, executor, &out))

	require.Error(t, err)
	assert.False(t, resp.Success)

	// The failure is still emitted as a structured response.
	var emitted interfaces.SigningResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &emitted))
	assert.False(t, emitted.Success)
	assert.Contains(t, emitted.Error, "dataToSign")

	// Nothing downstream is touched on an input fault.
	executor.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SuccessEmitsResponse(t *testing.T) {
	verifier := new(MockVerifier)
	executor := new(MockExecutor)
	executor.On("Sign", mock.Anything, []byte{0xde, 0xad, 0xbe, 0xef}, "pubkey", "sig1").Return(nil)

	var out bytes.Buffer
	resp, err := Run(context.Background(), &SigningInput{
		DataToSign: "0xdeadbeef",
		PublicKey:  "pubkey",
		SigName:    "sig1",
	}, testDeps(verifier, executor, &out))

	require.NoError(t, err)
	assert.True(t, resp.Success)

	// The emitted JSON matches the returned response.
	var emitted interfaces.SigningResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &emitted))
	assert.True(t, emitted.Success)
	assert.True(t, emitted.VerificationResults.AllConditionsMet)

	executor.AssertExpectations(t)
}

func TestRun_DenialEmitsResponse(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyTestsPassed", mock.Anything, "http://ci/results").Return(false)
	executor := new(MockExecutor)

	var out bytes.Buffer
	resp, err := Run(context.Background(), &SigningInput{
		DataToSign: "beef",
		PublicKey:  "pubkey",
		SigName:    "sig1",
		Conditions: interfaces.SigningConditions{RequireTests: true},
		Params: interfaces.VerificationParams{
			Tests: &interfaces.TestRunParams{ResultsURL: "http://ci/results"},
		},
	}, testDeps(verifier, executor, &out))

	require.ErrorIs(t, err, interfaces.ErrConditionsNotMet)
	assert.False(t, resp.Success)

	var emitted interfaces.SigningResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &emitted))
	assert.False(t, emitted.Success)
	assert.False(t, emitted.VerificationResults.TestsPassed)

	executor.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWriterEmitter(t *testing.T) {
	var out bytes.Buffer
	e := &WriterEmitter{W: &out}

	require.NoError(t, e.EmitResponse(`{"success":true}`))
	assert.Equal(t, "{\"success\":true}\n", out.String())
}
