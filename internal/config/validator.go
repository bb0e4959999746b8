package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
)

//go:embed schema.cue
var schemaCUE []byte

// Validator validates configuration against the embedded CUE schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator creates a new configuration validator.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return nil, fmt.Errorf("schema has no #Config definition")
	}

	return &Validator{ctx: ctx, schema: def}, nil
}

// Validate checks cfg against the schema. source names the file the values
// came from and is reported as the error location.
func (v *Validator) Validate(cfg *Config, source string) error {
	c := *cfg
	if c.GitHub.Branches == nil {
		c.GitHub.Branches = []string{}
	}
	value := v.ctx.Encode(&c)
	if value.Err() != nil {
		return fmt.Errorf("encoding config: %w", value.Err())
	}

	unified := v.schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return oerrors.NewValidationError(
			describe(err),
			source,
			"Run 'meteorcrawler config init' to see the expected keys and defaults.",
		)
	}

	var problems []string
	if _, err := cfg.BuildFloor(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := cfg.TestFloor(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := cfg.TestInterval(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return oerrors.NewValidationError(strings.Join(problems, "; "), source, "")
	}

	return nil
}

// describe flattens CUE errors into one line per problem.
func describe(err error) string {
	var lines []string
	for _, e := range cueerrors.Errors(err) {
		path := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 0 {
		return err.Error()
	}
	return strings.Join(lines, "; ")
}

// RequireCredentials reports every missing required setting at once.
func RequireCredentials(cfg *Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Docker.User) == "" {
		missing = append(missing, "docker.user (DOCKER_HUB_USER)")
	}
	if strings.TrimSpace(cfg.GitHub.Token) == "" {
		missing = append(missing, "github.token (METEORCRAWLER_GITHUB_OAUTH_TOKEN)")
	}
	if strings.TrimSpace(cfg.Notify.Email) == "" {
		missing = append(missing, "notify.email (EMAIL_ADDRESS)")
	}
	if len(missing) == 0 {
		return nil
	}
	return oerrors.NewConfigError(
		"required settings are missing",
		missing,
		"Set them in the config file or through the listed environment variables.",
	)
}
