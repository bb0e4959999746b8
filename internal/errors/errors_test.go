//nolint:revive // Package name matches the package it tests
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	assert.NotEqual(t, ErrConfig, ErrConnectivity)
	assert.NotEqual(t, ErrConfig, ErrNotWritable)
	assert.NotEqual(t, ErrValidation, ErrNotFound)
}

func TestDetailErrorError(t *testing.T) {
	detail := &DetailError{
		Type:     "configuration invalid",
		Message:  "missing value",
		Location: "/home/me/.meteorcrawler/config.yaml",
		Context:  map[string]string{"Fields": "docker.user", "Alpha": "first"},
		Hint:     "Set DOCKER_HUB_USER",
	}

	output := detail.Error()

	assert.Contains(t, output, "Error: configuration invalid")
	assert.Contains(t, output, "Location: /home/me/.meteorcrawler/config.yaml")
	assert.Contains(t, output, "Fields: docker.user")
	assert.Contains(t, output, "missing value")
	assert.Contains(t, output, "Hint: Set DOCKER_HUB_USER")
	assert.Less(t, strings.Index(output, "Alpha"), strings.Index(output, "Fields"), "context keys are sorted")
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("required configuration is missing", []string{"docker.user", "notify.email"}, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Contains(t, err.Error(), "docker.user, notify.email")
}

func TestNewConnectivityError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewConnectivityError("listing tags", map[string]string{"Repository": "aedm/meteor"}, cause)

	assert.True(t, errors.Is(err, ErrConnectivity))
	assert.True(t, errors.Is(err, cause))
}

func TestNewNotWritableError(t *testing.T) {
	err := NewNotWritableError("/var/lib/queues", fmt.Errorf("permission denied"))

	assert.True(t, errors.Is(err, ErrNotWritable))
	assert.Contains(t, err.Error(), "/var/lib/queues")
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "branch development")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "branch development: not found", err.Error())
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExitError{Code: 3, Err: inner}

	assert.Equal(t, "boom", err.Error())
	assert.True(t, errors.Is(err, inner))

	var target *ExitError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, 3, target.Code)

	assert.Equal(t, "exit code 2", (&ExitError{Code: 2}).Error())
}
