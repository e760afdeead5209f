package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"fractea_engine/internal/entity"
)

func TestFeePolicyPadsNetworkEstimate(t *testing.T) {
	chain := newFakeChainClient()
	chain.estimateGas = 50000
	policy := NewFeePolicy(newTestConfig().FeePolicy, zap.NewNop())

	estimate := policy.Estimate(context.Background(), chain, ethereum.CallMsg{}, entity.OpNativeTransfer)

	assert.False(t, estimate.FallbackUsed)
	assert.Equal(t, uint64(50000), estimate.Units)
	assert.Equal(t, uint64(60000), estimate.PaddedUnits)
}

func TestFeePolicyFallsBackPerClass(t *testing.T) {
	chain := newFakeChainClient()
	chain.estimateErr = errors.New("node refused to estimate")
	policy := NewFeePolicy(newTestConfig().FeePolicy, zap.NewNop())

	estimate := policy.Estimate(context.Background(), chain, ethereum.CallMsg{}, entity.OpContractCall)

	assert.True(t, estimate.FallbackUsed)
	assert.Equal(t, uint64(150000), estimate.Units)
	assert.Equal(t, uint64(180000), estimate.PaddedUnits)
}

func TestFeePolicyUnknownClassUsesMostConservativeFallback(t *testing.T) {
	chain := newFakeChainClient()
	chain.estimateErr = errors.New("node refused to estimate")
	policy := NewFeePolicy(newTestConfig().FeePolicy, zap.NewNop())

	estimate := policy.Estimate(context.Background(), chain, ethereum.CallMsg{}, entity.OperationClass("mystery"))

	assert.True(t, estimate.FallbackUsed)
	assert.Equal(t, uint64(150000), estimate.Units)
}
