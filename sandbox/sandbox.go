// Package sandbox provides the isolated, ephemeral entry point for one
// signing-gate invocation. Input arrives as an explicit typed struct, the
// result is returned as a typed response, and the only output channel is the
// injected emitter. No global state is read and nothing survives the
// invocation.
package sandbox

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ruteri/safe-signing-gate/gate"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

// SigningInput is the complete input of one sandbox execution.
type SigningInput struct {
	// DataToSign is the hex-encoded payload to sign, with or without 0x
	// prefix.
	DataToSign string `json:"dataToSign"`

	// PublicKey identifies the custody key.
	PublicKey string `json:"publicKey"`

	// SigName names the signature slot for out-of-band retrieval.
	SigName string `json:"sigName"`

	Conditions interfaces.SigningConditions `json:"conditions"`
	Params     interfaces.VerificationParams `json:"params"`
}

// Validate checks the input shape before any oracle or custody call.
func (in *SigningInput) Validate() error {
	if strings.TrimPrefix(in.DataToSign, "0x") == "" {
		return errors.New("dataToSign is required")
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(in.DataToSign, "0x")); err != nil {
		return fmt.Errorf("dataToSign is not valid hex: %w", err)
	}
	if in.PublicKey == "" {
		return errors.New("publicKey is required")
	}
	if in.SigName == "" {
		return errors.New("sigName is required")
	}
	return nil
}

// Dependencies are the injected capabilities of one sandbox execution.
type Dependencies struct {
	Verifier interfaces.ConditionVerifier
	Executor interfaces.SigningExecutor
	Emitter  interfaces.ResponseEmitter
	Log      *slog.Logger
}

// Run executes one signing-gate invocation. The structured response is
// emitted as JSON through the emitter and also returned to the caller. The
// returned error distinguishes input faults and custody faults from the
// distinguished interfaces.ErrConditionsNotMet denial.
func Run(ctx context.Context, input *SigningInput, deps Dependencies) (interfaces.SigningResponse, error) {
	if err := input.Validate(); err != nil {
		resp := interfaces.SigningResponse{
			Success: false,
			Error:   err.Error(),
		}
		emit(deps, resp)
		return resp, err
	}

	dataToSign, err := hex.DecodeString(strings.TrimPrefix(input.DataToSign, "0x"))
	if err != nil {
		// Unreachable after Validate, kept for safety.
		resp := interfaces.SigningResponse{Success: false, Error: err.Error()}
		emit(deps, resp)
		return resp, err
	}

	g := gate.New(deps.Verifier, deps.Executor, deps.Log)
	resp, err := g.Invoke(ctx, &gate.Request{
		DataToSign: dataToSign,
		PublicKey:  input.PublicKey,
		SigName:    input.SigName,
		Conditions: input.Conditions,
		Params:     input.Params,
	})

	emit(deps, resp)
	return resp, err
}

func emit(deps Dependencies, resp interfaces.SigningResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		deps.Log.Error("Could not marshal signing response", "err", err)
		return
	}
	if err := deps.Emitter.EmitResponse(string(payload)); err != nil {
		deps.Log.Error("Could not emit signing response", "err", err)
	}
}

// WriterEmitter emits responses as single JSON lines on an io.Writer. It is
// the default emitter for command-line sandbox executions.
type WriterEmitter struct {
	W io.Writer
}

// EmitResponse writes the response followed by a newline.
func (e *WriterEmitter) EmitResponse(response string) error {
	_, err := fmt.Fprintln(e.W, response)
	return err
}
