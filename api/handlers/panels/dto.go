package panels

import (
	"actionflow/internal/activity"
	"actionflow/internal/panel"
)

type panelDTO struct {
	panel.Snapshot
	Buttons []activity.Button `json:"buttons"`
}

type updatePanelRequest struct {
	Value *string `json:"value" binding:"required"`
}
