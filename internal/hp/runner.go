package hp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/hangview/internal/logging"
	"github.com/tOgg1/hangview/internal/models"
)

// CommandKind says why a protocol callback runs.
type CommandKind string

const (
	KindProtocolExit  CommandKind = "protocol_exit"
	KindProtocolEnter CommandKind = "protocol_enter"
	KindLayoutChange  CommandKind = "layout_change"
)

// Command is one protocol callback bound to the protocol that declared it.
type Command struct {
	Kind       CommandKind
	ProtocolID string
	Name       string
	Options    map[string]any
}

// Runner executes protocol callbacks on behalf of the host.
type Runner interface {
	Run(ctx context.Context, commands []Command, args map[string]any) (any, error)
}

// commandsFor binds a protocol's callback list to kind.
func commandsFor(kind CommandKind, protocolID string, callbacks []models.Command) []Command {
	out := make([]Command, 0, len(callbacks))
	for _, cb := range callbacks {
		out = append(out, Command{Kind: kind, ProtocolID: protocolID, Name: cb.Name, Options: cb.Options})
	}
	return out
}

// Vetoed reports whether a layout change result rejects the change.
func Vetoed(result any, err error) bool {
	if errors.Is(err, ErrLayoutRejected) {
		return true
	}
	rejected, ok := result.(bool)
	return ok && !rejected
}

// HandlerFunc handles one command. Options of the command and the run
// arguments are passed separately.
type HandlerFunc func(ctx context.Context, cmd Command, args map[string]any) (any, error)

// HandlerRunner dispatches commands to handlers registered by name.
// Commands run in order; the result is the last handler's result. Unknown
// names are logged and skipped.
type HandlerRunner struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
}

// NewHandlerRunner creates an empty runner.
func NewHandlerRunner() *HandlerRunner {
	return &HandlerRunner{
		handlers: make(map[string]HandlerFunc),
		logger:   logging.Component("runner"),
	}
}

// Handle registers fn under name, replacing any previous handler.
func (r *HandlerRunner) Handle(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Run executes commands in order and stops at the first error.
func (r *HandlerRunner) Run(ctx context.Context, commands []Command, args map[string]any) (any, error) {
	var result any
	for _, cmd := range commands {
		r.mu.RLock()
		fn, ok := r.handlers[cmd.Name]
		r.mu.RUnlock()
		if !ok {
			r.logger.Warn().Str("command", cmd.Name).Str("kind", string(cmd.Kind)).Msg("no handler for protocol callback")
			continue
		}
		r.logger.Debug().
			Str("command", cmd.Name).
			Str("kind", string(cmd.Kind)).
			Str("protocol_id", cmd.ProtocolID).
			Interface("options", logging.RedactMap(cmd.Options)).
			Msg("running protocol callback")
		out, err := fn(ctx, cmd, args)
		if err != nil {
			return out, fmt.Errorf("%s %s: %w", cmd.Kind, cmd.Name, err)
		}
		result = out
	}
	return result, nil
}
