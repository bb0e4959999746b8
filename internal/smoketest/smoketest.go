// Package smoketest builds a sample application against a published image
// variant, runs it and checks that it serves a page.
package smoketest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/meteorcrawler/meteorcrawler/internal/docker"
	"github.com/meteorcrawler/meteorcrawler/internal/notify"
	"github.com/meteorcrawler/meteorcrawler/internal/registry"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
	"github.com/meteorcrawler/meteorcrawler/internal/runner"
	"github.com/meteorcrawler/meteorcrawler/internal/templates"
	"github.com/meteorcrawler/meteorcrawler/internal/version"
)

const (
	// DoctypePrefix must start every page served by a healthy instance.
	DoctypePrefix = "<!DOCTYPE html>"

	// Marker must appear somewhere in the page.
	Marker = "meteor"

	projectMount = "/dockerhost"
)

// Registry lists published tags.
type Registry interface {
	Tags(ctx context.Context, repo string) ([]registry.Tag, error)
	TagNames(ctx context.Context, repo string) ([]string, error)
}

// BranchSource reports branch heads of the build script repository.
type BranchSource interface {
	Branches(ctx context.Context, owner, repo string, names []string) ([]resolve.Branch, error)
}

// Scheduler spools the next test cycle.
type Scheduler interface {
	ScheduleTest(ctx context.Context) error
}

// WaitFunc wraps the polling phase, e.g. to show a spinner.
type WaitFunc func(ctx context.Context, title string, action func() error) error

// State is the terminal state of one test cycle.
type State string

const (
	StateNothingToDo State = "nothing-to-do"
	StatePassed      State = "passed"
	StateFailed      State = "failed"
)

// Result describes one test cycle.
type Result struct {
	State  State            `json:"state"`
	Item   resolve.WorkItem `json:"item"`
	Image  string           `json:"image,omitempty"`
	Pushed bool             `json:"pushed"`
	Reason string           `json:"reason,omitempty"`
}

// Options configures a Tester.
type Options struct {
	// Owner is the registry account of every repository below.
	Owner string

	MeteorRepo     string
	TestRepo       string
	MinimeteorRepo string

	// ScriptOwner and ScriptRepo host the build script tried on Branches
	// when every docker variant combination has been tested.
	ScriptOwner string
	ScriptRepo  string
	Branches    []string

	// Images selects which published Meteor images are tested.
	Images resolve.ImageFilter

	// Instance is the fixed container name; only one test runs per host.
	Instance string
	Port     int
	Attempts int
	Interval time.Duration

	// ScriptTimeout bounds the build script in seconds; zero disables it.
	ScriptTimeout int

	// RescheduleOnFailure also spools the next cycle after a failed test or
	// a test image that could not be pushed.
	RescheduleOnFailure bool

	TempRoot string

	// Output receives image build output. Optional.
	Output io.Writer
}

// DefaultOptions returns the production settings apart from names.
func DefaultOptions() Options {
	return Options{
		MeteorRepo:     "meteor",
		TestRepo:       "minimeteor-buildtest",
		MinimeteorRepo: "minimeteor",
		ScriptOwner:    "aedm",
		ScriptRepo:     "minimeteor",
		Branches:       []string{"master", "development"},
		Images: resolve.ImageFilter{
			Floor:                version.MustParse("1.3.3"),
			MaxComponents:        3,
			LatestAlwaysEligible: true,
		},
		Instance:            "autominitest",
		Port:                3000,
		Attempts:            20,
		Interval:            time.Second,
		ScriptTimeout:       2400,
		RescheduleOnFailure: true,
	}
}

// Deps are the collaborators a Tester drives.
type Deps struct {
	Registry Registry

	// Branches is optional; without it there is no script fallback.
	Branches BranchSource
	Runner   runner.Runner
	Docker   *docker.CLI
	Prober   Prober
	Notifier notify.Notifier

	// Spool and Wait are optional.
	Spool Scheduler
	Wait  WaitFunc
	Log   *log.Logger
}

// Tester runs smoke test cycles.
type Tester struct {
	opts Options
	deps Deps
	log  *log.Logger
}

// New creates a Tester.
func New(opts Options, deps Deps) *Tester {
	if deps.Log == nil {
		deps.Log = log.Default()
	}
	if deps.Wait == nil {
		deps.Wait = func(_ context.Context, _ string, action func() error) error { return action() }
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Tester{opts: opts, deps: deps, log: deps.Log}
}

// Run resolves the next untested combination and tests it. Only resolution
// errors are returned; test failures are reported in the Result.
func (t *Tester) Run(ctx context.Context) (Result, error) {
	// Phase 1: RESOLVE
	item, ok, err := t.resolve(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		t.log.Info("every combination is tested")
		return Result{State: StateNothingToDo, Reason: "every combination is tested"}, nil
	}
	return t.test(ctx, item), nil
}

func (t *Tester) resolve(ctx context.Context) (resolve.WorkItem, bool, error) {
	tested, err := t.deps.Registry.TagNames(ctx, t.opts.TestRepo)
	if err != nil {
		return resolve.WorkItem{}, false, err
	}
	published, err := t.deps.Registry.TagNames(ctx, t.opts.MeteorRepo)
	if err != nil {
		return resolve.WorkItem{}, false, err
	}
	variantTags, err := t.deps.Registry.Tags(ctx, t.opts.MinimeteorRepo)
	if err != nil {
		return resolve.WorkItem{}, false, err
	}

	images := resolve.TestImages(published, t.opts.Images)
	variants := make([]resolve.Variant, 0, len(variantTags))
	for _, v := range variantTags {
		variants = append(variants, resolve.Variant{Name: v.Name, LastUpdated: v.LastUpdated})
	}
	testedSet := sets.New(tested...)
	t.log.Debug("test candidates", "images", len(images), "variants", len(variants), "tested", testedSet.Len())

	if item, ok := resolve.NextTest(variants, images, testedSet); ok {
		return item, true, nil
	}
	if t.deps.Branches == nil {
		return resolve.WorkItem{}, false, nil
	}

	branches, err := t.deps.Branches.Branches(ctx, t.opts.ScriptOwner, t.opts.ScriptRepo, t.opts.Branches)
	if err != nil {
		return resolve.WorkItem{}, false, fmt.Errorf("reading build script branches: %w", err)
	}
	item, ok := resolve.NextBranchTest(branches, images, testedSet)
	if ok {
		t.log.Info("found untested commit", "branch", item.Branch)
	}
	return item, ok, nil
}

func (t *Tester) test(ctx context.Context, item resolve.WorkItem) (res Result) {
	image := docker.ImageRef(t.opts.Owner, t.opts.TestRepo, item.CompositeKey)
	res = Result{Item: item, Image: image}
	logger := t.log.With("test", item.CompositeKey)
	logger.Info("testing", "image", item.Tag, "variant", item.Variant, "branch", item.Branch)

	dir, err := os.MkdirTemp(t.opts.TempRoot, "meteorcrawler-test-")
	if err != nil {
		dir = ""
	}
	// Phase 6: CLEANUP
	defer t.cleanup(context.WithoutCancel(ctx), dir, logger)

	var reason string
	if dir == "" {
		reason = fmt.Sprintf("creating work directory: %v", err)
	} else {
		reason = t.exercise(ctx, item, dir, image, logger)
	}

	if reason != "" {
		// Phase 5: FAILED
		logger.Error("test failed", "reason", reason)
		res.State = StateFailed
		res.Reason = reason
		t.notify(ctx, notify.TestFailed(item.CompositeKey, reason))
		if t.opts.RescheduleOnFailure {
			t.schedule(ctx)
		}
		return res
	}

	// Phase 5: PASSED
	logger.Info("test passed")
	res.State = StatePassed
	t.notify(ctx, notify.TestPassed(image))

	pushed, err := t.deps.Docker.Push(ctx, image)
	if reason := failure("test image could not be pushed", pushed, err); reason != "" {
		// The combination stays untested in the registry, so it is picked
		// again by the next cycle.
		logger.Error("could not push test image", "reason", reason)
		res.Reason = reason
		t.notify(ctx, notify.TestFailed(item.CompositeKey, reason))
		if t.opts.RescheduleOnFailure {
			t.schedule(ctx)
		}
		return res
	}
	res.Pushed = true
	t.schedule(ctx)
	return res
}

// exercise provisions, polls and validates the instance. It returns the
// failure reason, or "" when the instance served a valid page.
func (t *Tester) exercise(ctx context.Context, item resolve.WorkItem, dir, image string, logger *log.Logger) string {
	// Phase 2: PROVISION
	if reason := t.createProject(ctx, item.Tag, dir); reason != "" {
		return reason
	}
	if reason := t.buildImage(ctx, item, dir, image); reason != "" {
		return reason
	}

	started, err := t.deps.Docker.Run(ctx, docker.RunOptions{
		Name:   t.opts.Instance,
		Image:  image,
		Detach: true,
		Links:  []string{"mongo"},
		Env: []string{
			"ROOT_URL=http://localhost",
			"MONGO_URL=mongodb://mongo/" + t.opts.Instance,
		},
	})
	if reason := failure("starting test instance", started, err); reason != "" {
		return reason
	}
	logger.Info("test instance started")

	ip, err := t.deps.Docker.BridgeIP(ctx, t.opts.Instance)
	if err != nil {
		return fmt.Sprintf("locating test instance: %v", err)
	}

	// Phase 3: POLL
	url := fmt.Sprintf("http://%s:%d/", ip, t.opts.Port)
	body, reason := t.poll(ctx, url, logger)
	if reason != "" {
		return reason
	}

	// Phase 4: VALIDATE
	return Validate(body)
}

// createProject runs "meteor create" inside the Meteor image, writing the
// project to dir, then hands the files back to the invoking user.
func (t *Tester) createProject(ctx context.Context, tag, dir string) string {
	meteorImage := docker.ImageRef(t.opts.Owner, t.opts.MeteorRepo, tag)
	mount := dir + ":" + projectMount

	create := append([]string{"meteor", "create"}, CreateSwitches(tag)...)
	create = append(create, projectMount)
	res, err := t.deps.Docker.Run(ctx, docker.RunOptions{
		Name:    t.opts.Instance,
		Image:   meteorImage,
		Remove:  true,
		Volumes: []string{mount},
		Command: create,
	})
	if reason := failure("creating meteor project", res, err); reason != "" {
		return reason
	}

	res, err = t.deps.Docker.Run(ctx, docker.RunOptions{
		Name:    t.opts.Instance,
		Image:   meteorImage,
		Remove:  true,
		Volumes: []string{mount},
		Command: []string{"chown", "-R", strconv.Itoa(os.Getuid()), projectMount},
	})
	return failure("handing over project files", res, err)
}

func (t *Tester) buildImage(ctx context.Context, item resolve.WorkItem, dir, image string) string {
	if item.Branch != "" {
		script := fmt.Sprintf("curl -fsSL https://raw.githubusercontent.com/%s/%s/%s/build.sh | sh -s %s",
			t.opts.ScriptOwner, t.opts.ScriptRepo, item.Branch, image)
		cmd := runner.Command{Name: "sh", Args: []string{"-c", script}, Dir: dir, Tee: t.opts.Output}
		if t.opts.ScriptTimeout > 0 {
			cmd.Args = append([]string{strconv.Itoa(t.opts.ScriptTimeout), cmd.Name}, cmd.Args...)
			cmd.Name = "timeout"
		}
		res, err := t.deps.Runner.Run(ctx, cmd)
		return failure("running build script", res, err)
	}

	data := templates.Data{BaseImage: docker.ImageRef(t.opts.Owner, t.opts.MinimeteorRepo, item.Variant)}
	if _, err := templates.WriteDockerfile(dir, templates.SmokeTest, data); err != nil {
		return err.Error()
	}
	res, err := t.deps.Docker.Build(ctx, image, dir, t.opts.Output)
	return failure("building test image", res, err)
}

// poll probes url until it answers or the attempts run out. Every failed
// attempt captures the instance logs; the last capture goes into the reason.
func (t *Tester) poll(ctx context.Context, url string, logger *log.Logger) (string, string) {
	var (
		body     string
		lastLogs string
		lastErr  error
		attempt  int
	)
	backoff := wait.Backoff{Duration: t.opts.Interval, Factor: 1, Steps: t.opts.Attempts}

	err := t.deps.Wait(ctx, "Waiting for test instance", func() error {
		return wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
			attempt++
			page, err := t.deps.Prober.Probe(ctx, url)
			if err == nil {
				body = page
				return true, nil
			}
			lastErr = err
			logger.Debug("test instance not answering", "attempt", attempt, "error", err)
			logs, logErr := t.deps.Docker.Logs(ctx, t.opts.Instance)
			if logErr != nil {
				logger.Debug("could not read instance logs", "error", logErr)
			} else {
				lastLogs = logs
			}
			return false, nil
		})
	})
	switch {
	case err == nil:
		return body, ""
	case wait.Interrupted(err) && ctx.Err() == nil:
		reason := fmt.Sprintf("test server is permanently down after %d attempts: %v", attempt, lastErr)
		if lastLogs != "" {
			reason += "\n\n" + strings.TrimSpace(lastLogs)
		}
		return "", reason
	default:
		return "", fmt.Sprintf("polling test instance: %v", err)
	}
}

// Validate checks a served page and returns the failure reason, or "".
func Validate(body string) string {
	if !strings.HasPrefix(body, DoctypePrefix) {
		return "response is not HTML"
	}
	if !strings.Contains(body, Marker) {
		return "HTML content probably invalid"
	}
	return ""
}

// CreateSwitches returns the extra "meteor create" flags a release needs to
// run as root: --unsafe-perm for 1.4.2 up to 1.4.2.1 and --allow-superuser
// from 1.4.2.1 on.
func CreateSwitches(tag string) []string {
	r, ok := version.Parse(tag)
	if !ok {
		return nil
	}
	var switches []string
	if r.IsAtLeast(version.MustParse("1.4.2")) && r.IsLessThan(version.MustParse("1.4.2.1")) {
		switches = append(switches, "--unsafe-perm")
	}
	if r.IsAtLeast(version.MustParse("1.4.2.1")) {
		switches = append(switches, "--allow-superuser")
	}
	return switches
}

// cleanup stops and removes the instance, deletes dir and prunes docker.
// Every step runs even when an earlier one fails.
func (t *Tester) cleanup(ctx context.Context, dir string, logger *log.Logger) {
	var errs []error
	if err := t.deps.Docker.Stop(ctx, t.opts.Instance); err != nil {
		errs = append(errs, err)
	}
	if err := t.deps.Docker.Remove(ctx, t.opts.Instance); err != nil {
		errs = append(errs, err)
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", dir, err))
		}
	}
	if err := t.deps.Docker.Prune(ctx); err != nil {
		errs = append(errs, err)
	}
	if agg := utilerrors.NewAggregate(errs); agg != nil {
		logger.Warn("cleanup incomplete", "error", agg)
	}
}

func (t *Tester) schedule(ctx context.Context) {
	if t.deps.Spool == nil {
		return
	}
	if err := t.deps.Spool.ScheduleTest(ctx); err != nil {
		t.log.Warn("could not schedule next test", "error", err)
	}
}

func (t *Tester) notify(ctx context.Context, msg notify.Message) {
	if t.deps.Notifier == nil {
		return
	}
	if err := t.deps.Notifier.Notify(ctx, msg); err != nil {
		t.log.Error("notification not delivered", "subject", msg.Subject, "error", err)
	}
}

// failure turns a command outcome into a failure reason, or "".
func failure(step string, res runner.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("%s: %v", step, err)
	}
	if !res.OK() {
		msg := fmt.Sprintf("%s: exit code %d", step, res.ExitCode)
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			msg += ": " + stderr
		}
		return msg
	}
	return ""
}
