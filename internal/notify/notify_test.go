package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteorcrawler/meteorcrawler/internal/runner"
	"github.com/meteorcrawler/meteorcrawler/internal/testutil"
)

func TestTemplatesAreDistinct(t *testing.T) {
	subjects := []string{
		BuildSucceeded("aedm/meteor:1.5").Subject,
		BuildFailed("aedm/meteor:1.5", 1).Subject,
		PushFailed("aedm/meteor:1.5").Subject,
		TestPassed("aedm/minimeteor-buildtest:1.5-docker-latest-x").Subject,
		TestFailed("1.5-docker-latest-x", "timeout").Subject,
	}
	seen := map[string]bool{}
	for _, s := range subjects {
		assert.False(t, seen[s], "duplicate subject %q", s)
		seen[s] = true
	}

	assert.Equal(t, "aedm/meteor:1.5 built.", subjects[0])
	assert.Equal(t, "FAILED: aedm/meteor:1.5", subjects[1])
	assert.Equal(t, "FAILED: aedm/meteor:1.5 was built, but can't be sent to Docker Hub.", subjects[2])
}

func TestSendmail_Notify(t *testing.T) {
	var stdin string
	fake := (&testutil.FakeRunner{}).On("/usr/sbin/sendmail", func(cmd runner.Command) (runner.Result, error) {
		data, err := io.ReadAll(cmd.Stdin)
		require.NoError(t, err)
		stdin = string(data)
		return runner.Result{}, nil
	})
	s := NewSendmail(fake, "/usr/sbin/sendmail", "me@example.com", "[meteorcrawler]", log.New(io.Discard))

	err := s.Notify(context.Background(), TestFailed("1.5-docker-latest-x", "Response is not HTML"))

	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/sbin/sendmail me@example.com"}, fake.Calls())
	assert.Contains(t, stdin, "To: me@example.com\n")
	assert.Contains(t, stdin, "Subject: [meteorcrawler] TEST FAILED: 1.5-docker-latest-x\n\n")
	assert.Contains(t, stdin, "Response is not HTML")
}

func TestSendmail_SubjectIsSingleLine(t *testing.T) {
	s := &Sendmail{recipient: "me@example.com", tag: "[x]"}
	out := s.render(Message{Subject: "line one\nBcc: evil@example.com"})
	assert.Contains(t, out, "Subject: [x] line one Bcc: evil@example.com\n")
}

func TestSendmail_NonzeroExit(t *testing.T) {
	fake := (&testutil.FakeRunner{}).Reply("sendmail", "", 75)
	s := NewSendmail(fake, "sendmail", "me@example.com", "[x]", log.New(io.Discard))

	err := s.Notify(context.Background(), BuildSucceeded("img"))

	assert.Error(t, err)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Message) error { return errors.New("smtp down") }

func TestLogged_SwallowsErrors(t *testing.T) {
	l := Logged{Notifier: failingNotifier{}, Log: log.New(io.Discard)}
	assert.NoError(t, l.Notify(context.Background(), BuildSucceeded("img")))
}
