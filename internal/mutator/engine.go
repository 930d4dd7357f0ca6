// Package mutator implements the mutation engine: deterministic,
// havoc, dictionary, splice, and protocol-aware field mutation stages,
// selected through an adaptive per-worker strategy weight map.
package mutator

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// minStrategyWeight is the floor enforced after every multiplicative
// weight update (Open Question #1 in SPEC_FULL.md / DESIGN.md): without
// it a strategy's weight can underflow to zero and become permanently
// unreachable by the weighted draw.
const minStrategyWeight = 0.05

// alpha is the weight-update learning rate from the adaptive strategy
// selection rule: w <- w * (1 + alpha*success_rate).
const alpha = 0.1

// CorpusPeek lets the splice stage draw a second entry without the
// mutation engine depending on the corpus package directly.
type CorpusPeek interface {
	RandomOther(excludeID string) (data []byte, ok bool)
}

// Engine dispatches to the configured stages and tracks their adaptive
// weights. Weights, like everything else in a driver, are worker-local.
type Engine struct {
	protocol   Protocol
	dict       *Dictionary
	weights    map[fuzztypes.MutationStage]float64
	stageOrder []fuzztypes.MutationStage
}

// NewEngine builds an engine for the given protocol (may be ProtocolNone)
// with all five stages uniformly weighted.
func NewEngine(proto Protocol) *Engine {
	order := []fuzztypes.MutationStage{
		fuzztypes.StageDeterministic,
		fuzztypes.StageHavoc,
		fuzztypes.StageDictionary,
		fuzztypes.StageSplice,
		fuzztypes.StageProtocol,
	}
	weights := make(map[fuzztypes.MutationStage]float64, len(order))
	for _, s := range order {
		weights[s] = 1.0
	}
	return &Engine{
		protocol:   proto,
		dict:       NewDictionary(proto),
		weights:    weights,
		stageOrder: order,
	}
}

// SelectStage draws a stage proportional to its current weight.
func (e *Engine) SelectStage() fuzztypes.MutationStage {
	total := 0.0
	for _, s := range e.stageOrder {
		total += e.weights[s]
	}
	target := total * secureFloat()
	acc := 0.0
	for _, s := range e.stageOrder {
		acc += e.weights[s]
		if target <= acc {
			return s
		}
	}
	return e.stageOrder[len(e.stageOrder)-1]
}

// Observe applies the adaptive weight update after a strategy has been
// used: on new coverage its weight grows multiplicatively; a floor
// keeps it from ever reaching zero.
func (e *Engine) Observe(stage fuzztypes.MutationStage, newCoverage bool) {
	successRate := 0.0
	if newCoverage {
		successRate = 1.0
	}
	w := e.weights[stage] * (1 + alpha*successRate)
	if w < minStrategyWeight {
		w = minStrategyWeight
	}
	e.weights[stage] = w
}

// Mutate produces one mutant of input using the given stage. peers
// supplies the second entry for splice; it may be nil, in which case
// splice degrades to returning the input unchanged (a permitted
// degenerate mutation per the failure model).
func (e *Engine) Mutate(input []byte, stage fuzztypes.MutationStage, peers CorpusPeek, excludeID string) []byte {
	switch stage {
	case fuzztypes.StageDeterministic:
		return mutateDeterministic(input)
	case fuzztypes.StageHavoc:
		return mutateHavoc(input)
	case fuzztypes.StageDictionary:
		return e.dict.Mutate(input)
	case fuzztypes.StageSplice:
		return mutateSplice(input, peers, excludeID)
	case fuzztypes.StageProtocol:
		return e.protocol.MutateField(input)
	default:
		return input
	}
}

// --- shared randomness helpers -------------------------------------
//
// Every stage draws randomness through these helpers so the whole
// engine uses one CSPRNG-backed source, matching the texture of the
// rest of this repo's randomness needs.

func secureUint32(bound uint32) uint32 {
	if bound == 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return 0
	}
	return uint32(n.Int64())
}

func secureInt(bound int) int {
	return int(secureUint32(uint32(bound)))
}

func secureFloat() float64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}

func secureBytes(n int) []byte {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return buf
}

func secureBool() bool {
	return secureUint32(2) == 1
}
