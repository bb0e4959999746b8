package output

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh/spinner"
)

// RunWithSpinner executes action while showing a spinner titled title.
// When stderr is not a terminal the action runs directly.
func RunWithSpinner(ctx context.Context, title string, action func() error) error {
	if !IsTTY() {
		return action()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- action()
	}()

	// The spinner action forwards the result, so it is delivered even if the
	// spinner itself is interrupted first.
	resCh := make(chan error, 1)
	spinnerErr := spinner.New().
		Title(title).
		Context(ctx).
		Action(func() {
			resCh <- <-errCh
		}).
		Run()

	if err := <-resCh; err != nil {
		return err
	}
	if spinnerErr != nil {
		return fmt.Errorf("spinner error: %w", spinnerErr)
	}
	return nil
}
