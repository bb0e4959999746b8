// Package queue implements durable, deduplicated per-kind work queues stored as
// flat text files, one tag per line.
//
// Every mutation is a read-modify-write of the whole file finished by an
// atomic rename. The files are not locked: callers must guarantee that only
// one process touches a queue directory at a time, which the external task
// spool does by running a single job at once.
package queue

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"k8s.io/apimachinery/pkg/util/sets"

	oerrors "github.com/meteorcrawler/meteorcrawler/internal/errors"
)

// Kind names one artifact kind, and therefore one queue file.
type Kind string

const (
	// KindMeteor holds Meteor release versions waiting for an image build.
	KindMeteor Kind = "meteor"

	// KindAlpine holds Node.js versions waiting for an Alpine builder image.
	KindAlpine Kind = "alpine"
)

// Kinds lists every known kind in display order.
func Kinds() []Kind {
	return []Kind{KindMeteor, KindAlpine}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown queue kind %q (valid: meteor, alpine)", s)
}

// Waker is notified when a queue gains work so the consumer of that kind can
// be scheduled.
type Waker interface {
	Wake(ctx context.Context, kind Kind) error
}

// WakerFunc adapts a function to Waker.
type WakerFunc func(ctx context.Context, kind Kind) error

// Wake implements Waker.
func (f WakerFunc) Wake(ctx context.Context, kind Kind) error {
	return f(ctx, kind)
}

// Queue manages the queue files in one directory.
type Queue struct {
	dir   string
	waker Waker
	log   *log.Logger
}

// Open prepares dir for use and verifies that it is writable. An unwritable
// directory is reported as ErrNotWritable; callers treat it as fatal.
// waker may be nil.
func Open(dir string, waker Waker, logger *log.Logger) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, oerrors.NewNotWritableError(dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, oerrors.NewNotWritableError(dir, err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		return nil, oerrors.NewNotWritableError(dir, err)
	}
	return &Queue{dir: dir, waker: waker, log: logger}, nil
}

// Dir returns the queue directory.
func (q *Queue) Dir() string {
	return q.dir
}

// Path returns the file backing kind.
func (q *Queue) Path(kind Kind) string {
	return filepath.Join(q.dir, string(kind)+".queue")
}

// List returns the pending tags of kind in order. A missing file is an empty queue.
func (q *Queue) List(kind Kind) ([]string, error) {
	data, err := os.ReadFile(q.Path(kind))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s queue: %w", kind, err)
	}

	var tags []string
	seen := sets.New[string]()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		tag := strings.TrimSpace(scanner.Text())
		if tag == "" || seen.Has(tag) {
			continue
		}
		seen.Insert(tag)
		tags = append(tags, tag)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s queue: %w", kind, err)
	}
	return tags, nil
}

// Enqueue appends tag to kind unless it is already present. It reports
// whether the tag was added. When the queue goes from empty to non-empty the
// waker is signalled.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, tag string) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, fmt.Errorf("enqueue %s: empty tag", kind)
	}

	tags, err := q.List(kind)
	if err != nil {
		return false, err
	}
	for _, t := range tags {
		if t == tag {
			q.log.Debug("already queued", "kind", kind, "tag", tag)
			return false, nil
		}
	}

	wasEmpty := len(tags) == 0
	if err := q.write(kind, append(tags, tag)); err != nil {
		return false, err
	}
	q.log.Info("queued", "kind", kind, "tag", tag)

	if wasEmpty {
		q.wake(ctx, kind)
	}
	return true, nil
}

// Dequeue pops tags from the front of kind. Tags in alreadyBuilt are dropped
// for good; the first other tag is returned. With leaveInQueueOnSkip the
// returned tag is moved to the tail instead of being removed, so a failed
// attempt is retried after the rest of the queue. The pruned list is written
// back even when nothing is returned.
func (q *Queue) Dequeue(kind Kind, alreadyBuilt sets.Set[string], leaveInQueueOnSkip bool) (string, bool, error) {
	tags, err := q.List(kind)
	if err != nil {
		return "", false, err
	}

	var (
		chosen string
		found  bool
	)
	for len(tags) > 0 {
		head := tags[0]
		tags = tags[1:]
		if alreadyBuilt.Has(head) {
			q.log.Debug("dropping built tag", "kind", kind, "tag", head)
			continue
		}
		chosen, found = head, true
		break
	}
	if found && leaveInQueueOnSkip {
		tags = append(tags, chosen)
	}

	if err := q.write(kind, tags); err != nil {
		return "", false, err
	}
	return chosen, found, nil
}

// Remove deletes tag from kind and reports whether it was queued. It never
// wakes the consumer.
func (q *Queue) Remove(kind Kind, tag string) (bool, error) {
	tags, err := q.List(kind)
	if err != nil {
		return false, err
	}
	kept := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tags) {
		return false, nil
	}
	if err := q.write(kind, kept); err != nil {
		return false, err
	}
	return true, nil
}

// Set replaces the whole list of kind. The waker is signalled when the new
// list is non-empty.
func (q *Queue) Set(ctx context.Context, kind Kind, tags []string) error {
	var clean []string
	seen := sets.New[string]()
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen.Has(t) {
			continue
		}
		seen.Insert(t)
		clean = append(clean, t)
	}

	if err := q.write(kind, clean); err != nil {
		return err
	}
	if len(clean) > 0 {
		q.wake(ctx, kind)
	}
	return nil
}

// wake signals the waker; failures are logged since the queue state is
// already durable and the next scheduled run will pick the work up.
func (q *Queue) wake(ctx context.Context, kind Kind) {
	if q.waker == nil {
		return
	}
	if err := q.waker.Wake(ctx, kind); err != nil {
		q.log.Warn("could not schedule consumer", "kind", kind, "error", err)
	}
}

func (q *Queue) write(kind Kind, tags []string) error {
	var buf bytes.Buffer
	for _, t := range tags {
		buf.WriteString(t)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(q.dir, string(kind)+".queue.tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s queue: %w", kind, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s queue: %w", kind, err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s queue: %w", kind, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s queue: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s queue: %w", kind, err)
	}
	if err := os.Rename(tmpName, q.Path(kind)); err != nil {
		return fmt.Errorf("replacing %s queue: %w", kind, err)
	}
	return nil
}
