package blockchain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI slice of the fractional-ownership ledger contract: the views the
// reconciler reads and the mutating calls the pipeline submits.
const ledgerABI = `[
  {"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"propertyId","type":"uint256"},{"name":"account","type":"address"}],"name":"calculateClaimable","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"name":"mint","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"name":"propertyId","type":"uint256"}],"name":"claim","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"propertyId","type":"uint256"}],"name":"depositRent","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	parsedLedgerABI  abi.ABI
	parsedLedgerOnce sync.Once
)

func ledgerContractABI() abi.ABI {
	parsedLedgerOnce.Do(func() {
		var err error
		parsedLedgerABI, err = abi.JSON(strings.NewReader(ledgerABI))
		if err != nil {
			// Initialization failure on a compile-time constant, panic is appropriate
			panic(fmt.Sprintf("failed to parse ledger contract ABI: %v", err))
		}
	})
	return parsedLedgerABI
}

// PackMint encodes mint(to, id, amount) call data for an investment.
func PackMint(to common.Address, assetID, fractions *big.Int) ([]byte, error) {
	data, err := ledgerContractABI().Pack("mint", to, assetID, fractions)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mint call: %w", err)
	}
	return data, nil
}

// PackClaim encodes claim(propertyId) call data for a rent claim.
func PackClaim(assetID *big.Int) ([]byte, error) {
	data, err := ledgerContractABI().Pack("claim", assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack claim call: %w", err)
	}
	return data, nil
}

// PackDepositRent encodes depositRent(propertyId) call data; the rent amount
// travels as the transaction value.
func PackDepositRent(assetID *big.Int) ([]byte, error) {
	data, err := ledgerContractABI().Pack("depositRent", assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositRent call: %w", err)
	}
	return data, nil
}
