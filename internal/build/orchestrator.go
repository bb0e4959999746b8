// Package build resolves the next image to build, builds it with docker,
// publishes it and chains follow-up work into other queues.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/meteorcrawler/meteorcrawler/internal/docker"
	"github.com/meteorcrawler/meteorcrawler/internal/notify"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
	"github.com/meteorcrawler/meteorcrawler/internal/templates"
	"github.com/meteorcrawler/meteorcrawler/internal/version"
)

// Upstream lists released versions, oldest first.
type Upstream interface {
	ReleaseVersions(ctx context.Context, owner, repo string) ([]string, error)
}

// Registry lists the tags already published to a repository.
type Registry interface {
	TagNames(ctx context.Context, repo string) ([]string, error)
}

// Scheduler spools another run of the builder of a kind.
type Scheduler interface {
	ScheduleBuild(ctx context.Context, kind queue.Kind) error
}

// Source selects where the tag to build comes from.
type Source int

const (
	// SourceUpstream picks the oldest eligible upstream release not yet published.
	SourceUpstream Source = iota

	// SourceQueue pops the artifact's queue.
	SourceQueue

	// SourceExplicit builds Request.Tag unless it is already published.
	SourceExplicit
)

func (s Source) String() string {
	switch s {
	case SourceUpstream:
		return "upstream"
	case SourceQueue:
		return "queue"
	case SourceExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// State is the terminal state of one orchestrator run.
type State string

const (
	StateNothingToDo State = "nothing-to-do"
	StateFailed      State = "failed"
	StatePublished   State = "published"
	StatePushFailed  State = "push-failed"
)

// Request asks for one build.
type Request struct {
	Source Source

	// Tag is required for SourceExplicit and ignored otherwise.
	Tag string
}

// Result describes what a run did.
type Result struct {
	State State `json:"state"`

	// Tag is the resolved tag, empty when there was nothing to do.
	Tag string `json:"tag,omitempty"`

	// Image is the full image reference that was built.
	Image string `json:"image,omitempty"`

	// Pushed reports whether the image reached the registry.
	Pushed bool `json:"pushed"`

	// Derived is the identifier chained into another queue, if any.
	Derived string `json:"derived,omitempty"`

	// Reason explains NothingToDo and Failed results.
	Reason string `json:"reason,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	// Owner is the registry account images are pushed under.
	Owner string

	// Floor is the minimum upstream release built by SourceUpstream.
	Floor version.Release

	// UpstreamOwner and UpstreamRepo locate the release tags.
	UpstreamOwner string
	UpstreamRepo  string

	// TempRoot is where scratch build directories are created; empty uses
	// the system default.
	TempRoot string

	// Output receives the build output as it is produced. Optional.
	Output io.Writer
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	// Upstream is only needed for SourceUpstream.
	Upstream Upstream
	Registry Registry
	Docker   *docker.CLI
	Queue    *queue.Queue
	Notifier notify.Notifier

	// Spool is optional; without it queue sources are not respooled.
	Spool Scheduler
	Log   *log.Logger
}

// Orchestrator builds one artifact kind.
type Orchestrator struct {
	artifact Artifact
	opts     Options
	deps     Deps
	log      *log.Logger
}

// New creates an orchestrator for artifact.
func New(artifact Artifact, opts Options, deps Deps) *Orchestrator {
	logger := deps.Log
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		artifact: artifact,
		opts:     opts,
		deps:     deps,
		log:      logger.With("kind", artifact.Kind),
	}
}

// Artifact returns the artifact this orchestrator builds.
func (o *Orchestrator) Artifact() Artifact {
	return o.artifact
}

// Run resolves at most one tag and drives it to a terminal state.
//
// Only resolution errors (unreachable registry or upstream, unreadable queue)
// are returned. Build and push failures are reported through the notifier and
// the Result; they are not errors.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	// Phase 1: RESOLVE
	tag, reason, err := o.resolve(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if tag == "" {
		o.log.Info("nothing to build", "source", req.Source, "reason", reason)
		return Result{State: StateNothingToDo, Reason: reason}, nil
	}

	res := o.buildAndPublish(ctx, tag)

	if req.Source == SourceQueue {
		retained := o.artifact.RetryFailed && !res.Pushed
		if o.artifact.RetryFailed && res.Pushed {
			if _, err := o.deps.Queue.Remove(o.artifact.Kind, tag); err != nil {
				o.log.Warn("could not remove published tag from queue", "tag", tag, "error", err)
			}
		}
		if retained {
			o.log.Info("left in queue for a later attempt", "tag", tag)
		}
		o.respool(ctx, tag, retained)
	}
	return res, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (tag, reason string, err error) {
	names, err := o.deps.Registry.TagNames(ctx, o.artifact.Repo)
	if err != nil {
		return "", "", err
	}
	published := sets.New(names...)
	o.log.Debug("published tags", "repository", o.artifact.Repo, "count", published.Len())

	switch req.Source {
	case SourceUpstream:
		if o.deps.Upstream == nil {
			return "", "", fmt.Errorf("%s images have no upstream release source", o.artifact.Kind)
		}
		releases, err := o.deps.Upstream.ReleaseVersions(ctx, o.opts.UpstreamOwner, o.opts.UpstreamRepo)
		if err != nil {
			return "", "", err
		}
		item, ok := resolve.NextBuild(releases, published, o.opts.Floor)
		if !ok {
			return "", "no unbuilt release", nil
		}
		return item.Tag, "", nil

	case SourceQueue:
		tag, ok, err := o.deps.Queue.Dequeue(o.artifact.Kind, published, o.artifact.RetryFailed)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "queue is empty", nil
		}
		return tag, "", nil

	case SourceExplicit:
		if req.Tag == "" {
			return "", "", fmt.Errorf("explicit build of %s needs a tag", o.artifact.Kind)
		}
		if published.Has(req.Tag) {
			return "", "already built", nil
		}
		return req.Tag, "", nil

	default:
		return "", "", fmt.Errorf("unknown build source %d", req.Source)
	}
}

func (o *Orchestrator) buildAndPublish(ctx context.Context, tag string) Result {
	image := docker.ImageRef(o.opts.Owner, o.artifact.Repo, tag)
	res := Result{Tag: tag, Image: image}
	logger := o.log.With("image", image)

	// Phase 2: BUILD
	dir, err := os.MkdirTemp(o.opts.TempRoot, "meteorcrawler-build-")
	if err != nil {
		return o.fail(ctx, res, fmt.Sprintf("creating build directory: %v", err), -1)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("could not remove build directory", "dir", dir, "error", err)
		}
	}()
	logger.Debug("using build directory", "dir", dir)

	data := templates.Data{
		Release:   tag,
		BaseImage: o.artifact.BaseImage,
		NodeLabel: templates.NodeLabel,
		CacheBust: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if _, err := templates.WriteDockerfile(dir, o.artifact.Template, data); err != nil {
		return o.fail(ctx, res, err.Error(), -1)
	}

	logger.Info("building")
	built, err := o.deps.Docker.Build(ctx, image, dir, o.opts.Output)
	if err != nil {
		return o.fail(ctx, res, fmt.Sprintf("running docker build: %v", err), -1)
	}
	if !built.OK() {
		return o.fail(ctx, res, fmt.Sprintf("docker build exited with code %d", built.ExitCode), built.ExitCode)
	}
	logger.Info("build succeeded")

	// Phase 3: PUBLISH
	pushed, err := o.deps.Docker.Push(ctx, image)
	switch {
	case err != nil:
		logger.Error("push failed", "error", err)
		res.State = StatePushFailed
		o.notify(ctx, notify.PushFailed(image))
	case !pushed.OK():
		logger.Error("push failed", "exit", pushed.ExitCode)
		res.State = StatePushFailed
		o.notify(ctx, notify.PushFailed(image))
	default:
		logger.Info("published")
		res.State = StatePublished
		res.Pushed = true
		o.notify(ctx, notify.BuildSucceeded(image))
	}

	// Phase 4: CHAIN
	res.Derived = o.chain(ctx, built.Stdout, logger)

	if err := o.deps.Docker.Prune(ctx); err != nil {
		logger.Warn("could not prune docker images", "error", err)
	}
	return res
}

func (o *Orchestrator) fail(ctx context.Context, res Result, reason string, exitCode int) Result {
	o.log.Error("build failed", "image", res.Image, "reason", reason)
	res.State = StateFailed
	res.Reason = reason
	msg := notify.BuildFailed(res.Image, exitCode)
	if exitCode < 0 {
		msg.Details = reason
	}
	o.notify(ctx, msg)
	return res
}

// chain enqueues the identifier derived from the build output, if the
// artifact defines one, and returns it.
func (o *Orchestrator) chain(ctx context.Context, buildOutput string, logger *log.Logger) string {
	if o.artifact.Extract == nil {
		return ""
	}
	derived, ok := o.artifact.Extract(buildOutput)
	if !ok {
		logger.Warn("no derived identifier in build output")
		return ""
	}
	logger.Info("found derived identifier", "value", derived)
	if o.artifact.Chain == "" {
		return derived
	}
	added, err := o.deps.Queue.Enqueue(ctx, o.artifact.Chain, derived)
	if err != nil {
		logger.Error("could not chain build", "queue", o.artifact.Chain, "error", err)
		return derived
	}
	if added {
		o.wakeBehindRetained(ctx, o.artifact.Chain, logger)
	}
	return derived
}

// wakeBehindRetained schedules a builder for kind when the queue already held
// entries before the one just added. Enqueue only wakes an empty queue, and a
// queue may be non-empty solely because of a tag retained after a failure.
func (o *Orchestrator) wakeBehindRetained(ctx context.Context, kind queue.Kind, logger *log.Logger) {
	if o.deps.Spool == nil {
		return
	}
	tags, err := o.deps.Queue.List(kind)
	if err != nil || len(tags) < 2 {
		return
	}
	if err := o.deps.Spool.ScheduleBuild(ctx, kind); err != nil {
		logger.Warn("could not spool builder", "queue", kind, "error", err)
	}
}

// respool schedules another queue run while entries remain. A tag retained
// after a failed attempt does not count, so a lone failure is not rebuilt in
// a loop; it is retried when new work arrives.
func (o *Orchestrator) respool(ctx context.Context, attempted string, retained bool) {
	if o.deps.Spool == nil {
		return
	}
	remaining, err := o.deps.Queue.List(o.artifact.Kind)
	if err != nil {
		o.log.Warn("could not read queue", "error", err)
		return
	}
	pending := len(remaining)
	if retained && slices.Contains(remaining, attempted) {
		pending--
	}
	if pending == 0 {
		return
	}
	if err := o.deps.Spool.ScheduleBuild(ctx, o.artifact.Kind); err != nil {
		o.log.Warn("could not respool builder", "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, msg notify.Message) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, msg); err != nil {
		o.log.Error("notification not delivered", "subject", msg.Subject, "error", err)
	}
}
