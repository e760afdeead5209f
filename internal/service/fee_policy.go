package service

import (
	"context"
	"math"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
	"fractea_engine/pkg/metrics"
)

// feePolicy turns the configured per-class cost table into pipeline estimates.
// An estimation failure is degraded service, not a hard error: the fallback
// constant keeps submissions flowing while the node misbehaves.
type feePolicy struct {
	cfg    config.FeePolicyConfig
	logger *zap.Logger
}

// NewFeePolicy creates the estimator over the configured fee table.
func NewFeePolicy(cfg config.FeePolicyConfig, logger *zap.Logger) port.FeePolicy {
	return &feePolicy{cfg: cfg, logger: logger.Named("fee_policy")}
}

func (p *feePolicy) Estimate(ctx context.Context, chain port.ChainClient, msg ethereum.CallMsg, class entity.OperationClass) entity.FeeEstimate {
	estimate := entity.FeeEstimate{
		Class:            class,
		SafetyMultiplier: p.cfg.SafetyMultiplier,
	}

	units, err := chain.EstimateGas(ctx, msg)
	if err != nil || units == 0 {
		estimate.Units = p.fallbackUnits(class)
		estimate.FallbackUsed = true
		metrics.EstimateFallbacks.WithLabelValues(string(class)).Inc()
		p.logger.Warn("Gas estimation failed, using per-class fallback",
			zap.String("class", string(class)),
			zap.Uint64("fallback_units", estimate.Units),
			zap.Error(err))
	} else {
		estimate.Units = units
	}

	estimate.PaddedUnits = uint64(math.Ceil(float64(estimate.Units) * p.cfg.SafetyMultiplier))
	return estimate
}

func (p *feePolicy) fallbackUnits(class entity.OperationClass) uint64 {
	if units, ok := p.cfg.FallbackUnits[string(class)]; ok && units > 0 {
		return units
	}
	// Unknown class: the most conservative configured value still beats an
	// arbitrary literal here.
	var highest uint64
	for _, units := range p.cfg.FallbackUnits {
		if units > highest {
			highest = units
		}
	}
	if highest == 0 {
		highest = 150000
	}
	return highest
}
