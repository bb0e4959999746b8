package cmd

import (
	"io"
	"time"

	"github.com/meteorcrawler/meteorcrawler/internal/build"
	"github.com/meteorcrawler/meteorcrawler/internal/docker"
	"github.com/meteorcrawler/meteorcrawler/internal/github"
	"github.com/meteorcrawler/meteorcrawler/internal/notify"
	"github.com/meteorcrawler/meteorcrawler/internal/output"
	"github.com/meteorcrawler/meteorcrawler/internal/queue"
	"github.com/meteorcrawler/meteorcrawler/internal/registry"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
	"github.com/meteorcrawler/meteorcrawler/internal/smoketest"
)

// probeTimeout bounds a single HTTP probe of the test instance.
const probeTimeout = 10 * time.Second

// clients are the network clients of one command run.
type clients struct {
	hub    *registry.Client
	github *github.Client
}

func (g *GlobalConfig) clients() *clients {
	cfg := g.Config
	return &clients{
		hub:    registry.New(cfg.Docker.HubURL, cfg.Docker.User, output.ScopedLogger("dockerhub")),
		github: github.New(cfg.GitHub.APIURL, cfg.GitHub.Token, output.ScopedLogger("github")),
	}
}

func (c *clients) Close() {
	_ = c.hub.Close()
	_ = c.github.Close()
}

func (g *GlobalConfig) docker() *docker.CLI {
	return docker.New(g.Runner, g.Config.Build.Timeout)
}

func (g *GlobalConfig) notifier() notify.Notifier {
	cfg := g.Config
	logger := output.ScopedLogger("notify")
	return notify.Logged{
		Notifier: notify.NewSendmail(g.Runner, cfg.Notify.Sendmail, cfg.Notify.Email, cfg.Notify.SubjectTag, logger),
		Log:      logger,
	}
}

// buildOutput is where docker build output is streamed, if anywhere.
func (g *GlobalConfig) buildOutput(w io.Writer) io.Writer {
	if g.Verbose {
		return w
	}
	return nil
}

func (g *GlobalConfig) artifact(kind queue.Kind) build.Artifact {
	if kind == queue.KindAlpine {
		return build.AlpineArtifact(g.Config.Docker.AlpineRepo)
	}
	return build.MeteorArtifact(g.Config.Docker.MeteorRepo)
}

func (g *GlobalConfig) builder(kind queue.Kind, c *clients, out io.Writer) (*build.Orchestrator, error) {
	cfg := g.Config
	floor, err := cfg.BuildFloor()
	if err != nil {
		return nil, err
	}
	return build.New(g.artifact(kind), build.Options{
		Owner:         cfg.Docker.User,
		Floor:         floor,
		UpstreamOwner: cfg.GitHub.Owner,
		UpstreamRepo:  cfg.GitHub.Repo,
		Output:        g.buildOutput(out),
	}, build.Deps{
		Upstream: c.github,
		Registry: c.hub,
		Docker:   g.docker(),
		Queue:    g.Queue,
		Notifier: g.notifier(),
		Spool:    g.Spool,
		Log:      output.ScopedLogger("build"),
	}), nil
}

// tester returns a smoke tester and a function releasing its HTTP client.
func (g *GlobalConfig) tester(c *clients, out io.Writer) (*smoketest.Tester, func(), error) {
	cfg := g.Config
	floor, err := cfg.TestFloor()
	if err != nil {
		return nil, nil, err
	}
	interval, err := cfg.TestInterval()
	if err != nil {
		return nil, nil, err
	}

	opts := smoketest.Options{
		Owner:          cfg.Docker.User,
		MeteorRepo:     cfg.Docker.MeteorRepo,
		TestRepo:       cfg.Docker.TestRepo,
		MinimeteorRepo: cfg.Docker.MinimeteorRepo,
		ScriptOwner:    cfg.GitHub.ScriptOwner,
		ScriptRepo:     cfg.GitHub.ScriptRepo,
		Branches:       cfg.GitHub.Branches,
		Images: resolve.ImageFilter{
			Floor:                floor,
			MaxComponents:        cfg.Test.MaxComponents,
			LatestAlwaysEligible: true,
		},
		Instance:            cfg.Test.Instance,
		Port:                cfg.Test.Port,
		Attempts:            cfg.Test.Attempts,
		Interval:            interval,
		ScriptTimeout:       cfg.Build.Timeout,
		RescheduleOnFailure: cfg.Test.RescheduleOnFailure,
		Output:              g.buildOutput(out),
	}

	prober := smoketest.NewHTTPProber(probeTimeout)
	deps := smoketest.Deps{
		Registry: c.hub,
		Runner:   g.Runner,
		Docker:   g.docker(),
		Prober:   prober,
		Notifier: g.notifier(),
		Spool:    g.Spool,
		Log:      output.ScopedLogger("smoketest"),
	}
	if cfg.GitHub.ScriptRepo != "" && len(cfg.GitHub.Branches) > 0 {
		deps.Branches = c.github
	}
	if !g.Verbose {
		deps.Wait = output.RunWithSpinner
	}

	return smoketest.New(opts, deps), func() { _ = prober.Close() }, nil
}
