package protocol

import "github.com/tOgg1/hangview/internal/models"

// DefaultSelectorID selects any display set.
const DefaultSelectorID = "defaultDisplaySetId"

// ActiveDisplaySetSelectorID is the selector carried from the active pane.
const ActiveDisplaySetSelectorID = "activeDisplaySet"

// DefaultProtocol is the baseline one-pane protocol that is always registered.
func DefaultProtocol() models.Protocol {
	return models.Protocol{
		ID:   models.DefaultProtocolID,
		Name: "Default",
		DisplaySetSelectors: map[string]models.DisplaySetSelector{
			DefaultSelectorID:          {},
			ActiveDisplaySetSelectorID: {},
		},
		Stages: []models.Stage{{
			ID:     "default",
			Name:   "1x1",
			Status: models.StageStatusEnabled,
			Layout: models.StageLayout{Rows: 1, Cols: 1},
			Viewports: []models.ViewportSpec{{
				ViewportOptions: map[string]any{models.OptionViewportType: DefaultViewportType},
				DisplaySets: []models.DisplaySetRef{
					{SelectorID: ActiveDisplaySetSelectorID},
				},
			}},
			DefaultViewport: &models.ViewportSpec{
				DisplaySets: []models.DisplaySetRef{{SelectorID: DefaultSelectorID}},
			},
		}},
	}
}
