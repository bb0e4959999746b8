package smoketest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteorcrawler/meteorcrawler/internal/docker"
	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
	"github.com/meteorcrawler/meteorcrawler/internal/notify"
	"github.com/meteorcrawler/meteorcrawler/internal/registry"
	"github.com/meteorcrawler/meteorcrawler/internal/resolve"
	"github.com/meteorcrawler/meteorcrawler/internal/runner"
	"github.com/meteorcrawler/meteorcrawler/internal/testutil"
)

const (
	variantUpdated = "2018-01-02T03:04:05.123Z"
	validPage      = "<!DOCTYPE html>\n<html><head><script src=\"/meteor_runtime_config.js\"></script></head></html>"
)

type fakeRegistry struct {
	names    map[string][]string
	variants []registry.Tag
	err      error
}

func (f *fakeRegistry) Tags(context.Context, string) ([]registry.Tag, error) {
	return f.variants, f.err
}

func (f *fakeRegistry) TagNames(_ context.Context, repo string) ([]string, error) {
	return f.names[repo], f.err
}

type fakeBranches struct {
	branches []resolve.Branch
	err      error
}

func (f *fakeBranches) Branches(context.Context, string, string, []string) ([]resolve.Branch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.branches, nil
}

// scriptedProber fails until the given attempt, then serves page.
type scriptedProber struct {
	succeedOn int
	page      string
	urls      []string
}

func (p *scriptedProber) Probe(_ context.Context, url string) (string, error) {
	p.urls = append(p.urls, url)
	if p.succeedOn > 0 && len(p.urls) >= p.succeedOn {
		return p.page, nil
	}
	return "", errors.New("connection refused")
}

type recordingNotifier struct {
	msgs []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

type countingSpool struct {
	scheduled int
}

func (c *countingSpool) ScheduleTest(context.Context) error {
	c.scheduled++
	return nil
}

type fixture struct {
	runner   *testutil.FakeRunner
	registry *fakeRegistry
	branches *fakeBranches
	prober   *scriptedProber
	notifier *recordingNotifier
	spool    *countingSpool
	opts     Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opts := DefaultOptions()
	opts.Owner = "owner"
	opts.Interval = time.Millisecond
	opts.Attempts = 5
	opts.TempRoot = t.TempDir()

	f := &fixture{
		runner: (&testutil.FakeRunner{}).
			Reply("docker inspect", "172.17.0.5\n", 0).
			Reply("docker logs", "=> Starting app\n", 0),
		registry: &fakeRegistry{
			names: map[string][]string{
				"meteor":               {"1.6.1", "1.5", "1.3.2", "1.4.2.1"},
				"minimeteor-buildtest": {"1.6.1-docker-latest-2018-01-02_03-04-05.123Z"},
			},
			variants: []registry.Tag{{Name: "latest", LastUpdated: variantUpdated}},
		},
		branches: &fakeBranches{},
		prober:   &scriptedProber{succeedOn: 1, page: validPage},
		notifier: &recordingNotifier{},
		spool:    &countingSpool{},
		opts:     opts,
	}
	return f
}

func (f *fixture) tester() *Tester {
	return New(f.opts, Deps{
		Registry: f.registry,
		Branches: f.branches,
		Runner:   f.runner,
		Docker:   docker.New(f.runner, 0),
		Prober:   f.prober,
		Notifier: f.notifier,
		Spool:    f.spool,
		Log:      log.New(io.Discard),
	})
}

func (f *fixture) callsContaining(s string) []string {
	var out []string
	for _, c := range f.runner.Calls() {
		if strings.Contains(c, s) {
			out = append(out, c)
		}
	}
	return out
}

func assertCleanedUp(t *testing.T, f *fixture) {
	t.Helper()
	assert.True(t, f.runner.Called("docker stop autominitest"), "instance not stopped")
	assert.True(t, f.runner.Called("docker rm autominitest"), "instance not removed")
	assert.True(t, f.runner.Called("docker system prune -af"), "docker not pruned")
	entries, err := os.ReadDir(f.opts.TempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory not removed")
}

func TestRun_DockerVariantPasses(t *testing.T) {
	f := newFixture(t)
	f.prober.succeedOn = 3

	var dockerfile string
	f.runner.On("docker build", func(cmd runner.Command) (runner.Result, error) {
		data, err := os.ReadFile(filepath.Join(cmd.Args[len(cmd.Args)-1], "Dockerfile"))
		require.NoError(t, err)
		dockerfile = string(data)
		return runner.Result{}, nil
	})

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	key := "1.5-docker-latest-2018-01-02_03-04-05.123Z"
	image := "owner/minimeteor-buildtest:" + key
	assert.Equal(t, StatePassed, res.State)
	assert.Equal(t, resolve.WorkItem{Tag: "1.5", CompositeKey: key, Variant: "latest"}, res.Item)
	assert.Equal(t, image, res.Image)
	assert.True(t, res.Pushed)
	assert.Empty(t, res.Reason)

	assert.Contains(t, dockerfile, "FROM owner/minimeteor:latest")
	require.Len(t, f.callsContaining("meteor create --allow-superuser /dockerhost"), 1)
	assert.Len(t, f.callsContaining("chown -R"), 1)
	assert.True(t, f.runner.Called("docker run -d --name autominitest --link mongo -e ROOT_URL=http://localhost -e MONGO_URL=mongodb://mongo/autominitest "+image))
	assert.Equal(t, []string{"http://172.17.0.5:3000/", "http://172.17.0.5:3000/", "http://172.17.0.5:3000/"}, f.prober.urls)
	assert.Len(t, f.callsContaining("docker logs autominitest"), 2)

	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, "TEST PASSED: "+image, f.notifier.msgs[0].Subject)
	assert.True(t, f.runner.Called("docker push "+image))
	assert.Equal(t, 1, f.spool.scheduled)
	assertCleanedUp(t, f)
}

func TestRun_ValidationFailure(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		reason string
	}{
		{name: "not html", page: "<html>meteor</html>", reason: "response is not HTML"},
		{name: "missing marker", page: "<!DOCTYPE html><html></html>", reason: "HTML content probably invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.prober.page = tt.page

			res, err := f.tester().Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, tt.reason, res.Reason)
			assert.False(t, res.Pushed)
			require.Len(t, f.notifier.msgs, 1)
			assert.Equal(t, notify.TestFailed(res.Item.CompositeKey, tt.reason), f.notifier.msgs[0])
			assert.False(t, f.runner.Called("docker push"))
			assert.Equal(t, 1, f.spool.scheduled, "the next cycle is scheduled after a failure")
			assertCleanedUp(t, f)
		})
	}
}

func TestRun_PollExhausted(t *testing.T) {
	f := newFixture(t)
	f.prober.succeedOn = 0

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Reason, "permanently down after 5 attempts")
	assert.Contains(t, res.Reason, "=> Starting app")
	assert.Len(t, f.prober.urls, 5)
	assert.Len(t, f.callsContaining("docker logs autominitest"), 5)
	assertCleanedUp(t, f)
}

func TestRun_RescheduleOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		reschedule bool
		want       int
	}{
		{name: "enabled", reschedule: true, want: 1},
		{name: "disabled", reschedule: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.prober.succeedOn = 0
			f.opts.Attempts = 1
			f.opts.RescheduleOnFailure = tt.reschedule

			res, err := f.tester().Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, tt.want, f.spool.scheduled)
		})
	}
}

func TestRun_TestImagePushFailure(t *testing.T) {
	tests := []struct {
		name       string
		reschedule bool
		want       int
	}{
		{name: "reschedules by default", reschedule: true, want: 1},
		{name: "stops when rescheduling is off", reschedule: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts.RescheduleOnFailure = tt.reschedule
			f.runner.On("docker push", func(runner.Command) (runner.Result, error) {
				return runner.Result{ExitCode: 1, Stderr: "denied: requested access to the resource is denied"}, nil
			})

			res, err := f.tester().Run(context.Background())
			require.NoError(t, err)

			key := "1.5-docker-latest-2018-01-02_03-04-05.123Z"
			reason := "test image could not be pushed: exit code 1: denied: requested access to the resource is denied"
			assert.Equal(t, StatePassed, res.State)
			assert.False(t, res.Pushed)
			assert.Equal(t, reason, res.Reason)
			assert.Equal(t, []notify.Message{
				notify.TestPassed("owner/minimeteor-buildtest:" + key),
				notify.TestFailed(key, reason),
			}, f.notifier.msgs)
			assert.Equal(t, tt.want, f.spool.scheduled)
			assertCleanedUp(t, f)
		})
	}
}

func TestRun_ProvisionFailureStillCleansUp(t *testing.T) {
	f := newFixture(t)
	f.runner.On("docker run --rm", func(runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: 1, Stderr: "no space left on device"}, nil
	})

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "creating meteor project: exit code 1: no space left on device", res.Reason)
	assert.Empty(t, f.prober.urls)
	assert.False(t, f.runner.Called("docker build"))
	assertCleanedUp(t, f)
}

func TestRun_CleanupStepsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.runner.Reply("docker stop", "", 1)
	f.runner.On("docker rm", func(runner.Command) (runner.Result, error) {
		return runner.Result{}, errors.New("docker daemon gone")
	})

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePassed, res.State)
	assertCleanedUp(t, f)
}

func TestRun_BranchFallback(t *testing.T) {
	f := newFixture(t)
	f.registry.names["minimeteor-buildtest"] = []string{
		"1.6.1-docker-latest-2018-01-02_03-04-05.123Z",
		"1.5-docker-latest-2018-01-02_03-04-05.123Z",
		"1.6.1-script-master-abc123",
	}
	f.branches.branches = []resolve.Branch{{Name: "master", CommitSHA: "abc123"}}

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePassed, res.State)
	assert.Equal(t, resolve.WorkItem{Tag: "1.5", CompositeKey: "1.5-script-master-abc123", Branch: "master"}, res.Item)
	assert.False(t, f.runner.Called("docker build"))

	var script runner.Command
	for _, c := range f.runner.Commands() {
		if c.Name == "timeout" {
			script = c
		}
	}
	assert.Equal(t, []string{
		"2400", "sh", "-c",
		"curl -fsSL https://raw.githubusercontent.com/aedm/minimeteor/master/build.sh | sh -s owner/minimeteor-buildtest:1.5-script-master-abc123",
	}, script.Args)
	assert.NotEmpty(t, script.Dir)
}

func TestRun_BranchErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	f.registry.names["minimeteor-buildtest"] = []string{
		"1.6.1-docker-latest-2018-01-02_03-04-05.123Z",
		"1.5-docker-latest-2018-01-02_03-04-05.123Z",
	}
	f.branches.err = oerrors.NewConnectivityError("listing GitHub data failed", nil, errors.New("unexpected status 502"))

	res, err := f.tester().Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrConnectivity))
	assert.NotEqual(t, StateNothingToDo, res.State)
	assert.Empty(t, f.runner.Calls())
	assert.Empty(t, f.notifier.msgs)
	assert.Zero(t, f.spool.scheduled)
}

func TestRun_NothingToDo(t *testing.T) {
	f := newFixture(t)
	f.registry.names["minimeteor-buildtest"] = []string{
		"1.6.1-docker-latest-2018-01-02_03-04-05.123Z",
		"1.5-docker-latest-2018-01-02_03-04-05.123Z",
	}

	res, err := f.tester().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateNothingToDo, res.State)
	assert.Empty(t, f.runner.Calls())
	assert.Empty(t, f.notifier.msgs)
}

func TestRun_RegistryError(t *testing.T) {
	f := newFixture(t)
	f.registry.err = errors.New("hub unreachable")

	_, err := f.tester().Run(context.Background())

	assert.Error(t, err)
	assert.Empty(t, f.runner.Calls())
}

func TestRun_WaitHookWrapsPolling(t *testing.T) {
	f := newFixture(t)
	var titles []string
	tester := f.tester()
	tester.deps.Wait = func(_ context.Context, title string, action func() error) error {
		titles = append(titles, title)
		return action()
	}

	res, err := tester.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePassed, res.State)
	assert.Equal(t, []string{"Waiting for test instance"}, titles)
}

func TestCreateSwitches(t *testing.T) {
	tests := []struct {
		tag  string
		want []string
	}{
		{tag: "1.3.5", want: nil},
		{tag: "1.4.1", want: nil},
		{tag: "1.4.2", want: []string{"--unsafe-perm"}},
		{tag: "1.4.2.1", want: []string{"--allow-superuser"}},
		{tag: "1.6", want: []string{"--allow-superuser"}},
		{tag: "latest", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, CreateSwitches(tt.tag))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate(validPage))
	assert.Equal(t, "response is not HTML", Validate(""))
	assert.Equal(t, "HTML content probably invalid", Validate("<!DOCTYPE html><body>hello</body>"))
}
