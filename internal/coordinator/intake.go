package coordinator

import (
	"context"
	"fmt"

	"github.com/annolab/webmark/internal/model"
)

// intakeStep is one stage of telemetry intake. Steps run in sequence
// and the first failure aborts the intake: a view that fails validation
// must not be journaled, and a view that could not be journaled must
// not be submitted, or a coordinator restart loses track of what the
// service already has.
type intakeStep interface {
	// Do executes the step against the sealed view.
	Do(ctx context.Context, view model.PageView) error

	// Name returns the step's name for logging.
	Name() string
}

// validateStep rejects views that violate the flush contract.
type validateStep struct{}

func (validateStep) Name() string { return "validate" }

func (validateStep) Do(_ context.Context, view model.PageView) error {
	if view.URL == "" {
		return fmt.Errorf("%w: page view has no URL", ErrValidation)
	}
	if !view.Sealed() {
		return fmt.Errorf("%w: page view is not sealed", ErrValidation)
	}
	if view.Dwell < 0 {
		return fmt.Errorf("%w: negative dwell time %v", ErrValidation, view.Dwell)
	}
	for _, e := range view.Events {
		if !model.ValidCaptureEventType(e.Type) {
			return fmt.Errorf("%w: unknown event type %q", ErrValidation, e.Type)
		}
	}
	return nil
}

// journalStep records the accepted view in persistent storage before
// anything leaves the machine.
type journalStep struct {
	store Storage
}

func (journalStep) Name() string { return "journal" }

func (s journalStep) Do(ctx context.Context, view model.PageView) error {
	if _, err := s.store.JournalPageView(ctx, view); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// submitStep delivers the view to the annotation service.
type submitStep struct {
	service TaskService
}

func (submitStep) Name() string { return "submit" }

func (s submitStep) Do(ctx context.Context, view model.PageView) error {
	if err := s.service.SubmitTelemetry(ctx, view); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// intakeTelemetry runs the intake steps for one flushed view.
func (c *Coordinator) intakeTelemetry(ctx context.Context, view model.PageView) error {
	steps := []intakeStep{
		validateStep{},
		journalStep{store: c.store},
		submitStep{service: c.service},
	}
	for _, step := range steps {
		if err := step.Do(ctx, view); err != nil {
			return err
		}
		c.logger.Debug("telemetry intake step complete",
			"step", step.Name(), "url", view.URL, "dwell", view.Dwell)
	}
	return nil
}
