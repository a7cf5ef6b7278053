// Package proposal deterministically constructs, validates, and hashes Safe
// transaction proposals for contract deployments and proxy upgrades.
package proposal

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

// defaultUpgradeSignature is used when an upgrade request does not name the
// upgrade function explicitly.
const defaultUpgradeSignature = "upgradeTo(address)"

// Builder constructs transaction proposals for a single (Safe address, chain
// id) pair. Construction fails fast on malformed input. Each build call
// returns its own metadata snapshot; the retained snapshot used by
// SerializeProposal is guarded by a mutex.
type Builder struct {
	safeAddress interfaces.Address
	chainID     uint64
	log         *slog.Logger

	mu           sync.Mutex
	lastMetadata interfaces.BuildMetadata
}

// NewBuilder creates a proposal builder for the given Safe address and chain
// id. The address must be a well-formed 20-byte hex string and the chain id a
// positive integer; invalid input fails here, not at first use.
func NewBuilder(safeAddress string, chainID int64, log *slog.Logger) (*Builder, error) {
	addr, err := interfaces.NewAddressFromHex(safeAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: safe address %q: %v", interfaces.ErrInvalidAddress, safeAddress, err)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrInvalidChainID, chainID)
	}

	return &Builder{
		safeAddress: addr,
		chainID:     uint64(chainID),
		log:         log,
	}, nil
}

// SafeAddress returns the Safe address the builder was constructed with.
func (b *Builder) SafeAddress() interfaces.Address {
	return b.safeAddress
}

// ChainID returns the chain id the builder was constructed with.
func (b *Builder) ChainID() uint64 {
	return b.chainID
}

// CreateDeploymentProposal builds a CREATE-style deployment proposal. The call
// data is the init bytecode followed by the ABI-encoded constructor arguments;
// the target is the zero address sentinel. Returns the proposal together with
// the audit metadata snapshot captured for this call.
func (b *Builder) CreateDeploymentProposal(req *interfaces.DeploymentRequest) (*interfaces.SafeTransactionProposal, interfaces.BuildMetadata, error) {
	bytecode, err := hex.DecodeString(strings.TrimPrefix(req.Bytecode, "0x"))
	if err != nil {
		return nil, interfaces.BuildMetadata{}, fmt.Errorf("invalid init bytecode: %w", err)
	}

	encodedArgs, err := encodeConstructorArgs(req.ConstructorArgs)
	if err != nil {
		return nil, interfaces.BuildMetadata{}, err
	}

	value := req.Value
	if value == "" {
		value = "0"
	}

	metadata := interfaces.BuildMetadata{
		PR:           req.Metadata["pr"],
		Commit:       req.Metadata["commit"],
		Deployer:     req.Metadata["deployer"],
		ContractName: req.ContractName,
		Timestamp:    time.Now().UTC(),
	}

	b.mu.Lock()
	b.lastMetadata = metadata
	b.mu.Unlock()

	proposal := &interfaces.SafeTransactionProposal{
		To:        interfaces.ZeroAddress.String(),
		Value:     value,
		Data:      "0x" + hex.EncodeToString(append(bytecode, encodedArgs...)),
		Operation: interfaces.OperationCall,
	}

	b.log.Debug("Built deployment proposal",
		slog.String("contract", req.ContractName),
		slog.Int("constructorArgs", len(req.ConstructorArgs)),
		slog.String("value", value))

	return proposal, metadata, nil
}

// CreateUpgradeProposal builds a proposal calling the proxy's upgrade function
// with the new implementation address.
func (b *Builder) CreateUpgradeProposal(req *interfaces.UpgradeRequest) (*interfaces.SafeTransactionProposal, error) {
	proxy, err := interfaces.NewAddressFromHex(req.ProxyAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: proxy address %q: %v", interfaces.ErrInvalidAddress, req.ProxyAddress, err)
	}

	impl, err := interfaces.NewAddressFromHex(req.NewImplementation)
	if err != nil {
		return nil, fmt.Errorf("%w: new implementation %q: %v", interfaces.ErrInvalidAddress, req.NewImplementation, err)
	}

	signature := req.FunctionSignature
	if signature == "" {
		signature = defaultUpgradeSignature
	}

	selector := crypto.Keccak256([]byte(signature))[:4]

	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, fmt.Errorf("could not construct address type: %w", err)
	}
	encodedImpl, err := abi.Arguments{{Type: addressTy}}.Pack(common.Address(impl))
	if err != nil {
		return nil, fmt.Errorf("could not encode implementation address: %w", err)
	}

	b.log.Debug("Built upgrade proposal",
		slog.String("proxy", proxy.String()),
		slog.String("implementation", impl.String()),
		slog.String("signature", signature))

	return &interfaces.SafeTransactionProposal{
		To:        proxy.String(),
		Value:     "0",
		Data:      "0x" + hex.EncodeToString(append(selector, encodedImpl...)),
		Operation: interfaces.OperationCall,
	}, nil
}

// ValidateProposal is a pure predicate over proposal shape. It never fails
// with an error and performs no network access: malformed or partial input,
// including anything that would panic during parsing, yields false.
func (b *Builder) ValidateProposal(proposal *interfaces.SafeTransactionProposal) (valid bool) {
	defer func() {
		if recover() != nil {
			valid = false
		}
	}()

	if proposal == nil {
		return false
	}
	if _, err := interfaces.NewAddressFromHex(proposal.To); err != nil {
		return false
	}
	value, ok := new(big.Int).SetString(proposal.Value, 10)
	if !ok || value.Sign() < 0 {
		return false
	}
	if proposal.Operation != interfaces.OperationCall && proposal.Operation != interfaces.OperationDelegateCall {
		return false
	}
	if !strings.HasPrefix(proposal.Data, "0x") {
		return false
	}
	return true
}

// GenerateValidationHash computes the canonical 32-byte digest of a proposal
// over the fixed field order {to, value, data, operation, safeTxGas}.
// Identical content yields an identical hash; any single differing field
// changes it.
func (b *Builder) GenerateValidationHash(proposal *interfaces.SafeTransactionProposal) string {
	canonical := strings.Join([]string{
		strings.ToLower(proposal.To),
		proposal.Value,
		strings.ToLower(proposal.Data),
		fmt.Sprintf("%d", proposal.Operation),
		proposal.SafeTxGas,
	}, "\x00")

	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(canonical)))
}

// CalculateDeploymentAddress derives the CREATE2 deployment address for the
// given init bytecode and salt, with the Safe as deployer:
//
//	address = last20(keccak256(0xff ++ safe ++ salt ++ keccak256(bytecode)))
//
// Pure: identical inputs always yield the identical address.
func (b *Builder) CalculateDeploymentAddress(bytecode string, salt [32]byte) (interfaces.Address, error) {
	code, err := hex.DecodeString(strings.TrimPrefix(bytecode, "0x"))
	if err != nil {
		return interfaces.Address{}, fmt.Errorf("invalid init bytecode: %w", err)
	}

	deployed := crypto.CreateAddress2(common.Address(b.safeAddress), salt, crypto.Keccak256(code))
	return interfaces.NewAddressFromBytes(deployed.Bytes())
}

// CreateBatchProposal wraps already-validated proposals into a batch,
// preserving order. No re-validation is performed.
func (b *Builder) CreateBatchProposal(proposals []interfaces.SafeTransactionProposal) interfaces.BatchProposal {
	transactions := make([]interfaces.SafeTransactionProposal, len(proposals))
	copy(transactions, proposals)
	return interfaces.BatchProposal{Transactions: transactions}
}

// SerializeProposal produces the storable form of a proposal together with
// the last retained metadata snapshot, the builder's Safe address and chain
// id, and the proposal's validation hash. Pure and non-network.
func (b *Builder) SerializeProposal(proposal *interfaces.SafeTransactionProposal) interfaces.SerializedProposal {
	b.mu.Lock()
	metadata := b.lastMetadata
	b.mu.Unlock()

	return interfaces.SerializedProposal{
		Proposal:       *proposal,
		Metadata:       metadata,
		SafeAddress:    b.safeAddress.String(),
		ChainID:        b.chainID,
		ValidationHash: b.GenerateValidationHash(proposal),
	}
}
