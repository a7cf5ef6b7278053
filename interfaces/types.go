// Package interfaces defines the core types and capability contracts for the
// signing gate system. It provides the contract between components without
// implementation details.
package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Address represents a 20-byte Ethereum address.
type Address [20]byte

// ZeroAddress is the CREATE-style deployment sentinel: a proposal targeting it
// is routed through the wallet contract's internal deployment opcode.
var ZeroAddress = Address{}

// NewAddressFromBytes creates an address from a raw byte slice.
func NewAddressFromBytes(addr []byte) (Address, error) {
	if len(addr) != 20 {
		return Address{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res Address
	copy(res[:], addr)
	return res, nil
}

// NewAddressFromHex creates an address from a hex string, with or without the
// 0x prefix.
func NewAddressFromHex(addr string) (Address, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewAddressFromBytes(addrBytes)
}

// String returns the 0x-prefixed lowercase hex representation.
func (addr Address) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr Address) Bytes() []byte {
	return addr[:]
}

// Equal compares two addresses for equality.
func (addr Address) Equal(other Address) bool {
	return addr == other
}

// Operation selects Call vs DelegateCall semantics for a Safe transaction.
type Operation uint8

const (
	// OperationCall executes the transaction as a regular CALL.
	OperationCall Operation = 0

	// OperationDelegateCall executes the transaction as a DELEGATECALL.
	OperationDelegateCall Operation = 1
)

// SafeTransactionProposal is a transaction prepared for threshold approval by
// a Safe multi-signature wallet.
type SafeTransactionProposal struct {
	// To is the 0x-prefixed 20-byte target address. The zero address marks a
	// CREATE-style deployment.
	To string `json:"to"`

	// Value is a non-negative base-10 wei amount.
	Value string `json:"value"`

	// Data is the 0x-prefixed call data.
	Data string `json:"data"`

	// Operation is 0 (Call) or 1 (DelegateCall).
	Operation Operation `json:"operation"`

	// SafeTxGas is an optional decimal gas hint; empty means unset.
	SafeTxGas string `json:"safeTxGas,omitempty"`
}

// BatchProposal wraps an ordered sequence of already-validated proposals.
type BatchProposal struct {
	Transactions []SafeTransactionProposal `json:"transactions"`
}

// DeploymentRequest describes a contract deployment to be turned into a
// proposal.
type DeploymentRequest struct {
	// ContractName identifies the contract for audit metadata.
	ContractName string `json:"contractName"`

	// Bytecode is the hex-encoded init bytecode, with or without 0x prefix.
	Bytecode string `json:"bytecode"`

	// ConstructorArgs are encoded in order by runtime type: bool, integer
	// types and *big.Int, and address-shaped hex strings are supported.
	ConstructorArgs []any `json:"constructorArgs"`

	// Value is a decimal wei amount; empty defaults to "0".
	Value string `json:"value,omitempty"`

	// Metadata carries audit context (pr, commit, deployer).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpgradeRequest describes a proxy implementation upgrade.
type UpgradeRequest struct {
	ProxyAddress      string `json:"proxyAddress"`
	NewImplementation string `json:"newImplementation"`

	// FunctionSignature is the canonical upgrade function signature,
	// e.g. "upgradeTo(address)".
	FunctionSignature string `json:"functionSignature"`
}

// BuildMetadata is the audit snapshot captured with each deployment proposal.
type BuildMetadata struct {
	PR           string    `json:"pr,omitempty"`
	Commit       string    `json:"commit,omitempty"`
	Deployer     string    `json:"deployer,omitempty"`
	ContractName string    `json:"contractName"`
	Timestamp    time.Time `json:"timestamp"`
}

// SerializedProposal is the storable form of a proposal together with its
// audit context and canonical hash.
type SerializedProposal struct {
	Proposal       SafeTransactionProposal `json:"proposal"`
	Metadata       BuildMetadata           `json:"metadata"`
	SafeAddress    string                  `json:"safeAddress"`
	ChainID        uint64                  `json:"chainId"`
	ValidationHash string                  `json:"validationHash"`
}

// SigningConditions declares which preconditions must hold before the custody
// network may sign. These are requirement flags, not results.
type SigningConditions struct {
	RequirePolicy   bool `json:"requirePolicy"`
	RequireTests    bool `json:"requireTests"`
	RequirePRMerged bool `json:"requirePrMerged"`
}

// PolicyParams identifies the policy decision endpoint and the input document
// it evaluates.
type PolicyParams struct {
	Endpoint string         `json:"endpoint"`
	Config   map[string]any `json:"config"`
}

// TestRunParams identifies the test-result resource to check.
type TestRunParams struct {
	ResultsURL string `json:"resultsUrl"`
}

// PullRequestParams identifies the pull request whose merge status gates the
// signature.
type PullRequestParams struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	PRNumber int    `json:"prNumber"`
	Token    string `json:"-"`
}

// VerificationParams bundles the per-condition oracle parameters. A nil bundle
// for a required condition fails that condition without an oracle call.
type VerificationParams struct {
	Policy      *PolicyParams      `json:"policy,omitempty"`
	Tests       *TestRunParams     `json:"tests,omitempty"`
	PullRequest *PullRequestParams `json:"pullRequest,omitempty"`
}

// VerificationResult records the per-condition outcomes of one gate
// invocation. Conditions that were not required are recorded as satisfied.
type VerificationResult struct {
	PolicyPassed     bool `json:"policyPassed"`
	TestsPassed      bool `json:"testsPassed"`
	PRMerged         bool `json:"prMerged"`
	AllConditionsMet bool `json:"allConditionsMet"`
}

// SigningResponse is the single structured output of a gate invocation.
type SigningResponse struct {
	Success             bool               `json:"success"`
	Error               string             `json:"error,omitempty"`
	VerificationResults VerificationResult `json:"verificationResults"`
	Timestamp           time.Time          `json:"timestamp,omitzero"`
}

// KeyConfig is the custody-key configuration persisted between deployments:
// which public key the network signs with and under what signature name.
type KeyConfig struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
	SigName   string `json:"sigName"`
	KeyID     string `json:"keyId,omitempty"`
}
