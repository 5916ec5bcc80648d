package hp

import (
	"cmp"
	"fmt"

	"github.com/tOgg1/hangview/internal/memory"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

// Target is a resolved protocol stage.
type Target struct {
	ProtocolID string
	StageIndex int
}

// StageLookup finds the last stage used for a protocol by stage key.
type StageLookup func(key string) (memory.StageRecord, bool)

// StageResolver turns Params into a concrete Target.
type StageResolver struct {
	protocols ProtocolService
}

// NewStageResolver creates a resolver over protocols.
func NewStageResolver(protocols ProtocolService) StageResolver {
	return StageResolver{protocols: protocols}
}

// Resolve picks the stage to apply. An explicit stage wins. Without a
// protocol id the current protocol and stage are kept. Switching protocol
// without a stage recalls the stage last used for that protocol and study,
// defaulting to 0.
func (r StageResolver) Resolve(p Params, current models.ProtocolState, stages StageLookup) (Target, error) {
	protocolID := p.ProtocolID
	stageIndex := p.StageIndex
	explicit := p.StageID != "" || p.StageIndex != nil

	switch {
	case protocolID == "":
		protocolID = current.ProtocolID
		if !explicit {
			idx := current.StageIndex
			stageIndex = &idx
		}
	case !explicit && stages != nil:
		study := cmp.Or(p.ActiveStudyUID, current.ActiveStudyUID)
		if rec, ok := stages(memory.StageKey(study, protocolID)); ok {
			idx := rec.StageIndex
			stageIndex = &idx
		}
	}

	idx, err := r.protocols.StageIndex(protocolID, protocol.StageRef{StageID: p.StageID, StageIndex: stageIndex})
	if err != nil {
		return Target{}, fmt.Errorf("resolve stage: %w", err)
	}
	if idx < 0 {
		idx = 0
	}
	return Target{ProtocolID: protocolID, StageIndex: idx}, nil
}
