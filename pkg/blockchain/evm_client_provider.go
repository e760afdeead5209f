package blockchain

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fractea_engine/internal/config"
	"fractea_engine/internal/port"
)

// evmClientProvider hands out one cached EVMClient per configured network, so
// repeated submissions do not redial the node.
type evmClientProvider struct {
	cfg      *config.Config
	contract common.Address
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]port.ChainClient
}

// NewEVMClientProvider creates a provider over the configured networks. All
// clients share one rate limiter; the bound is per process, not per network.
func NewEVMClientProvider(cfg *config.Config, logger *zap.Logger) port.ChainClientProvider {
	return &evmClientProvider{
		cfg:      cfg,
		contract: common.HexToAddress(cfg.Contract.Address),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RpcClient.RateLimit), cfg.RpcClient.BurstLimit),
		logger:   logger.Named("chain_provider"),
		clients:  make(map[string]port.ChainClient),
	}
}

func (p *evmClientProvider) GetClient(network string) (port.ChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, exists := p.clients[network]; exists {
		return client, nil
	}

	node, ok := p.cfg.Network(network)
	if !ok {
		return nil, fmt.Errorf("network %q is not configured", network)
	}

	p.logger.Info("Creating new EVM client",
		zap.String("network", node.Name),
		zap.String("rpc_primary", node.RPCURL))

	client, err := NewEVMClient(
		node,
		p.contract,
		p.limiter,
		time.Duration(p.cfg.RpcClient.ConnectionTimeoutSeconds)*time.Second,
		time.Duration(p.cfg.RpcClient.CallTimeoutSeconds)*time.Second,
	)
	if err != nil {
		p.logger.Error("Failed to create EVM client", zap.String("network", node.Name), zap.Error(err))
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", node.Name, err)
	}

	p.clients[network] = client
	return client, nil
}
