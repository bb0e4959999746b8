// Package notify sends one-line status mails to the maintainer.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/meteorcrawler/meteorcrawler/internal/runner"
)

// Message is one notification.
type Message struct {
	// Subject is the one-line summary.
	Subject string

	// Details is optional extra text, e.g. a failure reason.
	Details string
}

// BuildSucceeded is sent after an image was built and pushed.
func BuildSucceeded(image string) Message {
	return Message{Subject: image + " built."}
}

// BuildFailed is sent when the image build exits nonzero.
func BuildFailed(image string, exitCode int) Message {
	return Message{
		Subject: "FAILED: " + image,
		Details: fmt.Sprintf("docker build exited with code %d", exitCode),
	}
}

// PushFailed is sent when a built image cannot be pushed.
func PushFailed(image string) Message {
	return Message{Subject: "FAILED: " + image + " was built, but can't be sent to Docker Hub."}
}

// TestPassed is sent when a smoke test succeeds.
func TestPassed(image string) Message {
	return Message{Subject: "TEST PASSED: " + image}
}

// TestFailed is sent when a smoke test fails for reason.
func TestFailed(testTag, reason string) Message {
	return Message{Subject: "TEST FAILED: " + testTag, Details: reason}
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sendmail delivers messages through a sendmail-compatible program.
type Sendmail struct {
	run       runner.Runner
	program   string
	recipient string
	tag       string
	log       *log.Logger
}

// NewSendmail creates a notifier mailing recipient via program
// (usually /usr/sbin/sendmail). tag prefixes every subject, e.g. "[meteorcrawler]".
func NewSendmail(r runner.Runner, program, recipient, tag string, logger *log.Logger) *Sendmail {
	return &Sendmail{run: r, program: program, recipient: recipient, tag: tag, log: logger}
}

// Notify implements Notifier.
func (s *Sendmail) Notify(ctx context.Context, msg Message) error {
	s.log.Debug("sending mail", "subject", msg.Subject)

	res, err := s.run.Run(ctx, runner.Command{
		Name:  s.program,
		Args:  []string{s.recipient},
		Stdin: strings.NewReader(s.render(msg)),
	})
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("sending mail: %s exited with code %d", s.program, res.ExitCode)
	}
	return nil
}

func (s *Sendmail) render(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", s.recipient)
	fmt.Fprintf(&b, "Subject: %s %s\n\n", s.tag, oneLine(msg.Subject))
	b.WriteString(msg.Subject)
	b.WriteString("\n")
	if msg.Details != "" {
		b.WriteString("\n")
		b.WriteString(msg.Details)
		b.WriteString("\n")
	}
	return b.String()
}

// oneLine keeps header injection out of the subject.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Logged wraps a Notifier so delivery failures are logged instead of
// returned; a lost mail must never turn a finished build into a failure.
type Logged struct {
	Notifier Notifier
	Log      *log.Logger
}

// Notify implements Notifier and always returns nil.
func (l Logged) Notify(ctx context.Context, msg Message) error {
	if err := l.Notifier.Notify(ctx, msg); err != nil {
		l.Log.Error("notification not delivered", "subject", msg.Subject, "error", err)
	}
	return nil
}
