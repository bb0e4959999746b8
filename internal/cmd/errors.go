package cmd

import (
	"errors"

	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
)

// ExitCodeFromError determines the appropriate exit code for an error.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *oerrors.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, oerrors.ErrConfig),
		errors.Is(err, oerrors.ErrValidation),
		errors.Is(err, oerrors.ErrNotWritable):
		return ExitConfigError
	case errors.Is(err, oerrors.ErrConnectivity):
		return ExitConnectivityError
	default:
		return ExitGeneralError
	}
}

// withExitCode wraps err in an ExitError carrying the code derived from it.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *oerrors.ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &oerrors.ExitError{Code: ExitCodeFromError(err), Err: err}
}
