// Package listener is the push half of the forwarding engine.
//
// The transport invokes it for every real-time message event. Each event is
// de-duplicated, checked against the command grammar, and then classified and
// delivered. Errors are contained per message so the event loop never dies.
package listener

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tgvault/vaultbot/internal/classify"
	"github.com/tgvault/vaultbot/internal/command"
	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
)

// DefaultDedupCapacity bounds the recently-seen message window. The
// transport may redeliver an event after reconnects; a small window is
// enough to absorb that.
const DefaultDedupCapacity = 512

// Listener processes push-delivered message events.
type Listener struct {
	classifier  *classify.Classifier
	executor    *deliver.Executor
	interpreter *command.Interpreter
	dedup       *dedupWindow
}

// New creates a Listener over the given pipeline components.
func New(classifier *classify.Classifier, executor *deliver.Executor, interpreter *command.Interpreter) *Listener {
	return &Listener{
		classifier:  classifier,
		executor:    executor,
		interpreter: interpreter,
		dedup:       newDedupWindow(DefaultDedupCapacity),
	}
}

// HandleEvent runs one event through the pipeline. It never returns an
// error: per-message failures are logged and contained.
func (l *Listener) HandleEvent(ctx context.Context, msg models.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in push pipeline contained", "panic", r, "source", msg.Source, "message_id", msg.ID)
		}
	}()

	if !l.dedup.firstSeen(msg.Source, msg.ID, msg.Edited) {
		slog.Debug("Duplicate push event dropped", "source", msg.Source, "message_id", msg.ID)
		return
	}

	// Commands are mutually exclusive with content; check them first.
	if l.interpreter.Handle(ctx, msg) {
		return
	}

	// Push delivery fires once per edit event; forwarding every revision
	// would spam the vault, so edits age out before classification. The
	// poll path picks up edited content instead.
	if msg.Edited {
		slog.Debug("Edited message dropped on push path", "source", msg.Source, "message_id", msg.ID)
		return
	}

	verdict := l.classifier.Classify(msg)
	if !verdict.Match {
		return
	}
	slog.Info("Push message matched", "source", msg.Source, "message_id", msg.ID, "reason", verdict.Reason)

	if out := l.executor.Deliver(ctx, msg); out.Status == deliver.Failed {
		slog.Warn("Push delivery failed, awaiting next event", "source", msg.Source, "message_id", msg.ID, "error", out.Err)
	}
}

// dedupWindow is a bounded FIFO set of recently observed message keys.
type dedupWindow struct {
	mu    sync.Mutex
	seen  map[dedupKey]struct{}
	order []dedupKey
	next  int
	cap   int
}

type dedupKey struct {
	source int64
	id     int
	edited bool
}

func newDedupWindow(capacity int) *dedupWindow {
	return &dedupWindow{
		seen:  make(map[dedupKey]struct{}, capacity),
		order: make([]dedupKey, capacity),
		cap:   capacity,
	}
}

// firstSeen records the key and reports whether it was new. Edit events get
// their own key so an edit of a seen message is not mistaken for a duplicate.
func (d *dedupWindow) firstSeen(source int64, id int, edited bool) bool {
	key := dedupKey{source: source, id: id, edited: edited}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}

	evicted := d.order[d.next]
	if _, ok := d.seen[evicted]; ok {
		delete(d.seen, evicted)
	}
	d.order[d.next] = key
	d.next = (d.next + 1) % d.cap
	d.seen[key] = struct{}{}
	return true
}
