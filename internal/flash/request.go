package flash

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Request travels from FlashSwap to the pair callback as the swap data.
type Request struct {
	Token     common.Address
	Amount    *big.Int
	Pair      common.Address
	Initiator common.Address
	Borrower  common.Address
}

var requestArgs = mustRequestArgs()

func mustRequestArgs() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "token", Type: addressType},
		{Name: "amount", Type: uintType},
		{Name: "pair", Type: addressType},
		{Name: "initiator", Type: addressType},
		{Name: "borrower", Type: addressType},
	}
}

// Encode ABI-encodes the request.
func (r Request) Encode() ([]byte, error) {
	return requestArgs.Pack(r.Token, r.Amount, r.Pair, r.Initiator, r.Borrower)
}

// DecodeRequest is the inverse of Request.Encode.
func DecodeRequest(data []byte) (Request, error) {
	values, err := requestArgs.Unpack(data)
	if err != nil {
		return Request{}, fmt.Errorf("decode flash request: %w", err)
	}
	if len(values) != len(requestArgs) {
		return Request{}, fmt.Errorf("decode flash request: got %d values", len(values))
	}

	var req Request
	var ok [5]bool
	req.Token, ok[0] = values[0].(common.Address)
	req.Amount, ok[1] = values[1].(*big.Int)
	req.Pair, ok[2] = values[2].(common.Address)
	req.Initiator, ok[3] = values[3].(common.Address)
	req.Borrower, ok[4] = values[4].(common.Address)
	for i, good := range ok {
		if !good {
			return Request{}, fmt.Errorf("decode flash request: unexpected type for %s", requestArgs[i].Name)
		}
	}
	return req, nil
}
