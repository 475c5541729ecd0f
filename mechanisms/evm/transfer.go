package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	h402 "github.com/bitgpt/h402/go"
)

var (
	erc20Once sync.Once
	erc20     abi.ABI
	erc20Err  error
)

func erc20ABI() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20, erc20Err = abi.JSON(bytes.NewReader(ERC20ABI))
	})
	return erc20, erc20Err
}

// PackTransfer encodes ERC-20 transfer(to, amount) calldata
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	parsed, err := erc20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	return parsed.Pack(FunctionTransfer, common.HexToAddress(to), amount)
}

// UnpackTransfer decodes ERC-20 transfer calldata
func UnpackTransfer(data []byte) (common.Address, *big.Int, error) {
	parsed, err := erc20ABI()
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	method := parsed.Methods[FunctionTransfer]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, fmt.Errorf("calldata is not an ERC-20 transfer")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to unpack transfer: %w", err)
	}
	if len(args) != 2 {
		return common.Address{}, nil, fmt.Errorf("transfer has %d arguments", len(args))
	}
	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected transfer recipient type %T", args[0])
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected transfer amount type %T", args[1])
	}
	return to, amount, nil
}

// TransferRequest builds the transaction that pays requirements: a plain value
// transfer for the native token, an ERC-20 transfer call otherwise
func TransferRequest(requirements h402.PaymentRequirements, chainID *big.Int, amount *big.Int) (TransactionRequest, error) {
	if !common.IsHexAddress(requirements.PayToAddress) {
		return TransactionRequest{}, fmt.Errorf("invalid payTo address %q", requirements.PayToAddress)
	}
	if IsNativeToken(requirements.TokenAddress) {
		return TransactionRequest{
			ChainID: chainID,
			To:      common.HexToAddress(requirements.PayToAddress).Hex(),
			Value:   new(big.Int).Set(amount),
		}, nil
	}
	if !common.IsHexAddress(requirements.TokenAddress) {
		return TransactionRequest{}, fmt.Errorf("invalid token address %q", requirements.TokenAddress)
	}
	data, err := PackTransfer(requirements.PayToAddress, amount)
	if err != nil {
		return TransactionRequest{}, err
	}
	return TransactionRequest{
		ChainID: chainID,
		To:      common.HexToAddress(requirements.TokenAddress).Hex(),
		Value:   new(big.Int),
		Data:    data,
	}, nil
}

// checkTransfer reports why tx does not pay at least amount to the
// requirement's payee, or "" when it does
func checkTransfer(tx *types.Transaction, requirements h402.PaymentRequirements, amount *big.Int) (string, string) {
	to := tx.To()
	if to == nil {
		return ErrInvalidTransaction, "contract creation cannot pay a resource"
	}

	if IsNativeToken(requirements.TokenAddress) {
		if !strings.EqualFold(to.Hex(), requirements.PayToAddress) {
			return ErrRecipientMismatch, fmt.Sprintf("transaction pays %s, expected %s", to.Hex(), requirements.PayToAddress)
		}
		if tx.Value().Cmp(amount) < 0 {
			return ErrInsufficientValue, fmt.Sprintf("transaction value %s is below required %s", tx.Value(), amount)
		}
		return "", ""
	}

	if !strings.EqualFold(to.Hex(), requirements.TokenAddress) {
		return ErrTokenMismatch, fmt.Sprintf("transaction calls %s, expected token %s", to.Hex(), requirements.TokenAddress)
	}
	recipient, value, err := UnpackTransfer(tx.Data())
	if err != nil {
		return ErrInvalidTransaction, err.Error()
	}
	if !strings.EqualFold(recipient.Hex(), requirements.PayToAddress) {
		return ErrRecipientMismatch, fmt.Sprintf("transfer pays %s, expected %s", recipient.Hex(), requirements.PayToAddress)
	}
	if value.Cmp(amount) < 0 {
		return ErrInsufficientValue, fmt.Sprintf("transfer amount %s is below required %s", value, amount)
	}
	return "", ""
}
