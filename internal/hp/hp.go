// Package hp applies hanging protocols to the viewport grid: stage
// resolution, restore and toggle memory, stage navigation, layout changes and
// the enter/exit callbacks around them.
package hp

import (
	"context"
	"errors"

	"github.com/tOgg1/hangview/internal/grid"
	"github.com/tOgg1/hangview/internal/models"
	"github.com/tOgg1/hangview/internal/protocol"
)

var (
	// ErrCommandInFlight is returned when a command is issued while another
	// one is still running.
	ErrCommandInFlight = errors.New("hanging protocol command in flight")

	// ErrLayoutRejected is returned when a layout change callback vetoes a
	// new grid shape.
	ErrLayoutRejected = errors.New("layout change rejected")

	// ErrNoApplicableStage is returned when stage navigation finds no enabled
	// stage in the requested direction.
	ErrNoApplicableStage = errors.New("no applicable stage")

	// ErrGridRejected is returned when the grid store refuses a remembered
	// grid.
	ErrGridRejected = errors.New("grid rejected")
)

// Params selects the protocol stage to apply. Zero values mean unspecified.
type Params struct {
	ProtocolID     string
	StageID        string
	StageIndex     *int
	ActiveStudyUID string
}

// ProtocolService is the protocol state the controller drives.
type ProtocolService interface {
	Protocol(id string) (models.Protocol, bool)
	ActiveProtocol() (protocol.Active, bool)
	State() models.ProtocolState
	StageIndex(protocolID string, ref protocol.StageRef) (int, error)
	SetProtocol(ctx context.Context, id string, opts protocol.SetOptions) error
	SetActiveStudyUID(uid string)
	MissingPane(protocolID string, stageIndex int, inDisplay []string) (*models.Pane, error)
}

// GridStore is the grid the controller reads and commits to.
type GridStore interface {
	State() models.GridState
	SetLayout(ctx context.Context, req grid.LayoutRequest) bool
	Replace(ctx context.Context, p grid.Partial) bool
}

// Severity grades a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-visible message.
type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Notification titles and messages.
const (
	TitleApplyFailed   = "Apply Hanging Protocol"
	messageApplyFailed = "The hanging protocol could not be applied."
	TitleChangeStage   = "Change Stage"
	messageNoStages    = "The hanging protocol has no more applicable stages"
)
