package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fluid-presale/internal/domain/entity"
)

// ContractInterface selects the ABI a call is encoded against.
type ContractInterface string

// Contract interfaces known to the ledger.
const (
	InterfacePresale ContractInterface = "presale"
	InterfaceERC20   ContractInterface = "erc20"
)

// CallRequest describes a contract method invocation before encoding.
type CallRequest struct {
	Interface ContractInterface
	Contract  common.Address
	Method    string
	Args      []any
	Value     *big.Int // base-asset value sent with the call, nil for none
	From      common.Address
}

// PreparedTx is an unsigned transaction ready for submission.
type PreparedTx struct {
	From   common.Address
	To     common.Address
	Data   []byte
	Value  *big.Int
	Method string
}

// TxOutcome is the result of a submitted transaction: a hash on success or an error.
type TxOutcome struct {
	Hash string
	Err  error
}

// Ledger is the narrow view of the ledger network and wallet provider.
type Ledger interface {
	// ReadRaised queries the presale's on-chain raised counter.
	ReadRaised(ctx context.Context) (*big.Int, error)

	// PrepareCall encodes a contract call into an unsigned transaction.
	PrepareCall(ctx context.Context, req CallRequest) (PreparedTx, error)

	// Submit sends the transaction and reports the outcome on the returned channel,
	// which receives exactly one value and is then closed. Submit never blocks on the
	// network.
	Submit(ctx context.Context, tx PreparedTx) <-chan TxOutcome
}

// Celebrator fires the success side effect for a completed purchase.
type Celebrator interface {
	Celebrate(receipt entity.Receipt)
}
