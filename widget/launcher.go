package widget

import (
	"context"
	"fmt"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils/validation"
)

// OpenSessionCommand is handed over by a completed intake form to open the chat
type OpenSessionCommand struct {
	Form model.FormData
}

// Launcher is the single owner of session creation
type Launcher struct {
	orchestrator Orchestrator
	validator    *validation.Validator
	opts         []Option
}

// NewLauncher creates a launcher; opts are applied to every session it opens
func NewLauncher(orchestrator Orchestrator, opts ...Option) *Launcher {
	return &Launcher{
		orchestrator: orchestrator,
		validator:    validation.NewValidator(),
		opts:         opts,
	}
}

// Open validates the participant descriptor, starts the conversation and arms
// the inactivity watcher. Callers must Stop the returned session when done.
func (l *Launcher) Open(ctx context.Context, cmd OpenSessionCommand) (*Session, error) {
	if err := l.validator.ValidateStruct(cmd.Form); err != nil {
		return nil, fmt.Errorf("invalid participant: %w", err)
	}

	session := NewSession(l.orchestrator, cmd.Form, l.opts...)
	if err := session.StartConversation(ctx); err != nil {
		return nil, err
	}
	session.StartWatcher()
	return session, nil
}
