// Package gate implements the signing-gate state machine. A gate invocation
// verifies the declared preconditions and exercises the custody network's
// sign capability iff every required condition verified true within that
// single invocation. Invocations are memoryless: no state survives past one
// call.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

// State identifies a position in the gate's per-invocation lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateCollectingConditions State = "collecting_conditions"
	StateEvaluating           State = "evaluating"
	StateApproved             State = "approved"
	StateDenied               State = "denied"
	StateSigning              State = "signing"
	StateSigned               State = "signed"
	StateSignFailed           State = "sign_failed"
)

// Request is the complete typed input of one gate invocation. Nothing is read
// from ambient or global state.
type Request struct {
	// DataToSign is the payload handed to the custody network on approval.
	DataToSign []byte

	// PublicKey identifies the custody key to sign with.
	PublicKey string

	// SigName names the signature slot for out-of-band retrieval.
	SigName string

	// Conditions declares which preconditions must hold.
	Conditions interfaces.SigningConditions

	// Params supplies the oracle parameters for the required conditions.
	Params interfaces.VerificationParams
}

// Gate drives condition verification and the conditional signing call.
// The zero Gate is not usable; construct with New.
type Gate struct {
	verifier interfaces.ConditionVerifier
	executor interfaces.SigningExecutor
	log      *slog.Logger
}

// New creates a signing gate over the given verifier and signing capability.
func New(verifier interfaces.ConditionVerifier, executor interfaces.SigningExecutor, log *slog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		executor: executor,
		log:      log,
	}
}

// invocation is the transient state of a single gate run.
type invocation struct {
	id    string
	state State
	log   *slog.Logger
}

func (inv *invocation) transition(to State) {
	inv.log.Info("Gate state transition",
		slog.String("from", string(inv.state)),
		slog.String("to", string(to)))
	inv.state = to
}

// Invoke runs one complete gate invocation: collect the declared conditions,
// evaluate all of them (no short-circuit, so the audit record is always
// complete), and either deny or perform exactly one signing attempt.
//
// The returned response is always populated. The error distinguishes the two
// failure classes: interfaces.ErrConditionsNotMet for a correct refusal, a
// wrapped interfaces.ErrSigningFailed for a custody fault. A failed signing
// attempt is terminal for the invocation; there are no retries.
func (g *Gate) Invoke(ctx context.Context, req *Request) (interfaces.SigningResponse, error) {
	inv := &invocation{
		id:    uuid.New().String(),
		state: StateIdle,
	}
	inv.log = g.log.With(slog.String("invocation", inv.id))

	inv.transition(StateCollectingConditions)
	inv.log.Info("Collected signing conditions",
		slog.Bool("requirePolicy", req.Conditions.RequirePolicy),
		slog.Bool("requireTests", req.Conditions.RequireTests),
		slog.Bool("requirePrMerged", req.Conditions.RequirePRMerged))

	inv.transition(StateEvaluating)
	results := g.evaluate(ctx, inv, req)

	if !results.AllConditionsMet {
		inv.transition(StateDenied)
		inv.log.Info("Signing denied: conditions not met",
			slog.Bool("policyPassed", results.PolicyPassed),
			slog.Bool("testsPassed", results.TestsPassed),
			slog.Bool("prMerged", results.PRMerged))
		return interfaces.SigningResponse{
			Success:             false,
			Error:               interfaces.ErrConditionsNotMet.Error(),
			VerificationResults: results,
		}, interfaces.ErrConditionsNotMet
	}

	inv.transition(StateApproved)
	inv.transition(StateSigning)

	if err := g.executor.Sign(ctx, req.DataToSign, req.PublicKey, req.SigName); err != nil {
		inv.transition(StateSignFailed)
		inv.log.Error("Custody signing call failed", "err", err)
		wrapped := fmt.Errorf("%w: %v", interfaces.ErrSigningFailed, err)
		return interfaces.SigningResponse{
			Success:             false,
			Error:               wrapped.Error(),
			VerificationResults: results,
		}, wrapped
	}

	inv.transition(StateSigned)
	inv.log.Info("Signing request accepted by custody network",
		slog.String("sigName", req.SigName))

	return interfaces.SigningResponse{
		Success:             true,
		VerificationResults: results,
		Timestamp:           time.Now().UTC(),
	}, nil
}

// evaluate resolves the three condition kinds in a fixed sequence. A
// condition whose requirement flag is false is trivially satisfied without an
// oracle call; a required condition with a missing parameter bundle fails
// immediately, also without an oracle call. All three are always evaluated so
// the audit record never omits a condition.
func (g *Gate) evaluate(ctx context.Context, inv *invocation, req *Request) interfaces.VerificationResult {
	var results interfaces.VerificationResult

	switch {
	case !req.Conditions.RequirePolicy:
		results.PolicyPassed = true
		inv.log.Debug("Policy check not required, skipping")
	case req.Params.Policy == nil:
		results.PolicyPassed = false
		inv.log.Warn("Policy check required but parameters missing")
	default:
		results.PolicyPassed = g.verifier.VerifyPolicy(ctx, req.Params.Policy.Endpoint, req.Params.Policy.Config)
	}

	switch {
	case !req.Conditions.RequireTests:
		results.TestsPassed = true
		inv.log.Debug("Test check not required, skipping")
	case req.Params.Tests == nil:
		results.TestsPassed = false
		inv.log.Warn("Test check required but parameters missing")
	default:
		results.TestsPassed = g.verifier.VerifyTestsPassed(ctx, req.Params.Tests.ResultsURL)
	}

	switch {
	case !req.Conditions.RequirePRMerged:
		results.PRMerged = true
		inv.log.Debug("PR merge check not required, skipping")
	case req.Params.PullRequest == nil:
		results.PRMerged = false
		inv.log.Warn("PR merge check required but parameters missing")
	default:
		p := req.Params.PullRequest
		results.PRMerged = g.verifier.VerifyPRMerged(ctx, p.Owner, p.Repo, p.PRNumber, p.Token)
	}

	results.AllConditionsMet = results.PolicyPassed && results.TestsPassed && results.PRMerged
	return results
}
