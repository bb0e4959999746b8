package cmd

// Exit codes. Build and test failures are reported through notifications and
// exit with ExitSuccess so the task spooler does not treat them as crashes.
const (
	// ExitSuccess indicates the command completed, whatever the build or test outcome.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitConfigError indicates missing or invalid configuration, or an
	// unwritable queue directory. Nothing was attempted.
	ExitConfigError = 2

	// ExitConnectivityError indicates Docker Hub or GitHub could not be reached.
	// No queue was modified.
	ExitConnectivityError = 3
)

// ExitCodeName returns the name of the exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitGeneralError:
		return "General Error"
	case ExitConfigError:
		return "Configuration Error"
	case ExitConnectivityError:
		return "Connectivity Error"
	default:
		return "Unknown"
	}
}
