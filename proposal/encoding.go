package proposal

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/safe-signing-gate/interfaces"
)

var addressShapeRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)

// encodeConstructorArgs ABI-encodes constructor arguments in order. Each
// supported type occupies one static 32-byte word:
//
//   - bool encodes to a big-endian word holding 1 or 0
//   - integer types and *big.Int encode as an unsigned uint256 word
//   - hex strings shaped like an address encode left-zero-padded
//
// Any other runtime type fails with ErrUnsupportedArgumentType; there is no
// silent coercion.
func encodeConstructorArgs(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}

	boolTy, err := abi.NewType("bool", "", nil)
	if err != nil {
		return nil, fmt.Errorf("could not construct bool type: %w", err)
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, fmt.Errorf("could not construct uint256 type: %w", err)
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, fmt.Errorf("could not construct address type: %w", err)
	}

	encoded := make([]byte, 0, 32*len(args))
	for i, arg := range args {
		var (
			word []byte
			err  error
		)

		switch v := arg.(type) {
		case bool:
			word, err = abi.Arguments{{Type: boolTy}}.Pack(v)
		case *big.Int:
			word, err = packUint256(uint256Ty, v)
		case int:
			word, err = packUint256(uint256Ty, big.NewInt(int64(v)))
		case int64:
			word, err = packUint256(uint256Ty, big.NewInt(v))
		case uint64:
			word, err = packUint256(uint256Ty, new(big.Int).SetUint64(v))
		case float64:
			// JSON numbers decode as float64; only integral values are
			// accepted, anything else is a caller error.
			if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: argument %d: non-integral number %v", interfaces.ErrUnsupportedArgumentType, i, v)
			}
			word, err = packUint256(uint256Ty, new(big.Int).SetInt64(int64(v)))
		case string:
			if !addressShapeRegex.MatchString(v) {
				return nil, fmt.Errorf("%w: argument %d: string %q is not address-shaped", interfaces.ErrUnsupportedArgumentType, i, v)
			}
			word, err = abi.Arguments{{Type: addressTy}}.Pack(common.HexToAddress(ensureHexPrefix(v)))
		default:
			return nil, fmt.Errorf("%w: argument %d has type %T", interfaces.ErrUnsupportedArgumentType, i, arg)
		}

		if err != nil {
			return nil, fmt.Errorf("could not encode argument %d: %w", i, err)
		}
		encoded = append(encoded, word...)
	}

	return encoded, nil
}

func packUint256(ty abi.Type, v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s cannot encode as uint256", v)
	}
	return abi.Arguments{{Type: ty}}.Pack(v)
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}
