package hp

import (
	"maps"

	"github.com/tOgg1/hangview/internal/memory"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

// carryOver is what the current view leaves behind for the next protocol
// application.
type carryOver struct {
	// update is stored in memory once the next application succeeds.
	update memory.Update
	// selectors is the full display set selector map to apply with.
	selectors map[string]string
}

// grid returns the grid remembered under key, preferring the one captured
// from the current view.
func (c carryOver) grid(mem *memory.Memory, key string) (models.GridState, bool) {
	if g, ok := c.update.Grids[key]; ok {
		return g, true
	}
	return mem.Grid(key)
}

// stage looks up the last stage used for a protocol, preferring the record
// captured from the current view.
func (c carryOver) stage(mem *memory.Memory) StageLookup {
	return func(key string) (memory.StageRecord, bool) {
		if rec, ok := c.update.Stages[key]; ok {
			return rec, true
		}
		return mem.Stage(key)
	}
}

// captureView records the current view: its stage for the protocol, the
// grid itself when it no longer matches the stage's layout, and which
// display set each selector resolved to.
func captureView(state models.GridState, active protocol.Active, hasActive bool, mem *memory.Memory) carryOver {
	out := carryOver{selectors: mem.Selectors()}
	if !hasActive {
		return out
	}

	study := active.StudyUID
	protocolID := active.Protocol.ID
	out.update.Stages = map[string]memory.StageRecord{
		memory.StageKey(study, protocolID): {StudyUID: study, ProtocolID: protocolID, StageIndex: active.StageIndex},
	}
	if customized(state, active.Stage) {
		out.update.Grids = map[string]models.GridState{
			memory.StorageKey(study, protocolID, active.StageIndex): state.Clone(),
		}
	}

	captured := make(map[string]string)
	for i, pane := range state.Panes {
		for j, uid := range pane.ContentRefs {
			if i == state.ActivePaneIndex && j == 0 {
				captured[protocol.SelectorMapKey(study, protocol.ActiveDisplaySetSelectorID, 0)] = uid
			}
			if j >= len(pane.ContentOptions) {
				continue
			}
			opts := pane.ContentOptions[j]
			selectorID, _ := opts[models.ContentOptionSelectorID].(string)
			if selectorID == "" {
				continue
			}
			captured[protocol.SelectorMapKey(study, selectorID, intOption(opts[models.ContentOptionMatchedIndex]))] = uid
		}
	}
	if len(captured) > 0 {
		out.update.Selectors = captured
		if out.selectors == nil {
			out.selectors = make(map[string]string, len(captured))
		}
		maps.Copy(out.selectors, captured)
	}
	return out
}

// customized reports whether the grid departs from the stage's own layout.
func customized(state models.GridState, stage models.Stage) bool {
	layout, cells := protocol.PlannedLayout(stage)
	return state.Layout.Rows != layout.Rows ||
		state.Layout.Cols != layout.Cols ||
		len(state.Panes) != cells
}

// intOption reads an integer option that may have been through JSON.
func intOption(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
