package grid

import (
	"strconv"
	"strings"

	"github.com/tOgg1/hangview/internal/models"
)

const presentationSeparator = "&"

// basePresentationID derives the presentation key of a pane from what it shows and where.
func basePresentationID(p models.Pane) string {
	parts := make([]string, 0, len(p.ContentRefs)+2)
	if vt := p.Option(models.OptionViewportType); vt != "" {
		parts = append(parts, vt)
	}
	parts = append(parts, p.ContentRefs...)
	if p.PositionID != "" {
		parts = append(parts, p.PositionID)
	}
	return strings.Join(parts, presentationSeparator)
}

// presentationID computes the key for panes[index], suffixed so that no
// other pane in panes carries the same value.
func presentationID(panes []models.Pane, index int) string {
	base := basePresentationID(panes[index])
	taken := make(map[string]struct{}, len(panes))
	for i, p := range panes {
		if i == index {
			continue
		}
		if id := p.PresentationID(); id != "" {
			taken[id] = struct{}{}
		}
	}
	if _, clash := taken[base]; !clash {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + presentationSeparator + strconv.Itoa(n)
		if _, clash := taken[candidate]; !clash {
			return candidate
		}
	}
}

// withPresentationID returns a copy of pane index with its presentationId set.
func withPresentationID(panes []models.Pane, index int) models.Pane {
	p := panes[index]
	opts := models.CloneOptions(p.PaneOptions)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts[models.OptionPresentationID] = presentationID(panes, index)
	p.PaneOptions = opts
	return p
}

// ensurePresentationIDs fills missing presentation ids and resolves clashes
// in pane order, keeping the first holder of a value.
func ensurePresentationIDs(panes []models.Pane) {
	seen := make(map[string]struct{}, len(panes))
	for i := range panes {
		id := panes[i].PresentationID()
		if _, dup := seen[id]; id == "" || dup {
			// Clear first so the pane does not collide with itself.
			opts := models.CloneOptions(panes[i].PaneOptions)
			delete(opts, models.OptionPresentationID)
			panes[i].PaneOptions = opts
			panes[i] = withPresentationID(panes, i)
			id = panes[i].PresentationID()
		}
		seen[id] = struct{}{}
	}
}
