package entity

// FeeEstimate is the resource cost the pipeline will attach to a transaction.
// Units is the raw estimate (network-reported or the per-class fallback);
// PaddedUnits already carries the safety multiplier.
type FeeEstimate struct {
	Class            OperationClass `json:"class"`
	Units            uint64         `json:"units"`
	PaddedUnits      uint64         `json:"paddedUnits"`
	SafetyMultiplier float64        `json:"safetyMultiplier"`
	FallbackUsed     bool           `json:"fallbackUsed"`
}
