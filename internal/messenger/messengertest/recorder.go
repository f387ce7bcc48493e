// Package messengertest provides an in-memory Messenger for tests.
package messengertest

import (
	"context"
	"sync"

	"github.com/quailyquaily/pbot/internal/messenger"
)

type Op string

const (
	OpSend        Op = "send"
	OpEdit        Op = "edit"
	OpReply       Op = "reply"
	OpDelete      Op = "delete"
	OpSendPrivate Op = "send_private"
	OpResolve     Op = "resolve"
)

type Call struct {
	Op     Op
	Ref    messenger.MessageRef
	UserID int64
	Text   string
}

// Recorder records every call. Messages are "known" once sent or replied
// through it, or after Seed; ResolveMessage reports only known messages.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int64
	known   map[messenger.MessageRef]string
	failOps map[Op]error

	// OnCall, when set, runs after each call is recorded and outside the lock.
	OnCall func(Call)
}

func NewRecorder() *Recorder {
	return &Recorder{
		nextID:  1000,
		known:   map[messenger.MessageRef]string{},
		failOps: map[Op]error{},
	}
}

// Seed marks a message as existing.
func (r *Recorder) Seed(ref messenger.MessageRef, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[ref] = text
}

// Fail makes every later call of op return err. A nil err clears it.
func (r *Recorder) Fail(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failOps, op)
		return
	}
	r.failOps[op] = err
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsOf returns the recorded calls with the given op, in order.
func (r *Recorder) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Text returns the current text of a known message.
func (r *Recorder) Text(ref messenger.MessageRef) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.known[ref]
	return text, ok
}

func (r *Recorder) Send(_ context.Context, chatID int64, text string) (messenger.MessageRef, error) {
	r.mu.Lock()
	ref := messenger.MessageRef{ChatID: chatID, MessageID: r.nextMessageIDLocked()}
	err := r.recordLocked(Call{Op: OpSend, Ref: ref, Text: text})
	if err == nil {
		r.known[ref] = text
	}
	r.mu.Unlock()
	r.notify(Call{Op: OpSend, Ref: ref, Text: text})
	if err != nil {
		return messenger.MessageRef{}, err
	}
	return ref, nil
}

func (r *Recorder) Edit(_ context.Context, ref messenger.MessageRef, text string) error {
	r.mu.Lock()
	err := r.recordLocked(Call{Op: OpEdit, Ref: ref, Text: text})
	if err == nil {
		if _, ok := r.known[ref]; !ok {
			err = messenger.ErrMessageNotFound
		} else {
			r.known[ref] = text
		}
	}
	r.mu.Unlock()
	r.notify(Call{Op: OpEdit, Ref: ref, Text: text})
	return err
}

func (r *Recorder) Reply(_ context.Context, ref messenger.MessageRef, text string) (messenger.MessageRef, error) {
	r.mu.Lock()
	out := messenger.MessageRef{ChatID: ref.ChatID, MessageID: r.nextMessageIDLocked()}
	err := r.recordLocked(Call{Op: OpReply, Ref: ref, Text: text})
	if err == nil {
		r.known[out] = text
	}
	r.mu.Unlock()
	r.notify(Call{Op: OpReply, Ref: ref, Text: text})
	if err != nil {
		return messenger.MessageRef{}, err
	}
	return out, nil
}

func (r *Recorder) Delete(_ context.Context, ref messenger.MessageRef) error {
	r.mu.Lock()
	err := r.recordLocked(Call{Op: OpDelete, Ref: ref})
	if err == nil {
		delete(r.known, ref)
	}
	r.mu.Unlock()
	r.notify(Call{Op: OpDelete, Ref: ref})
	return err
}

func (r *Recorder) SendPrivate(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	err := r.recordLocked(Call{Op: OpSendPrivate, UserID: userID, Text: text})
	r.mu.Unlock()
	r.notify(Call{Op: OpSendPrivate, UserID: userID, Text: text})
	return err
}

func (r *Recorder) ResolveMessage(_ context.Context, chatID, messageID int64) (messenger.MessageRef, bool, error) {
	ref := messenger.MessageRef{ChatID: chatID, MessageID: messageID}
	r.mu.Lock()
	err := r.recordLocked(Call{Op: OpResolve, Ref: ref})
	_, ok := r.known[ref]
	r.mu.Unlock()
	r.notify(Call{Op: OpResolve, Ref: ref})
	if err != nil {
		return messenger.MessageRef{}, false, err
	}
	if !ok {
		return messenger.MessageRef{}, false, nil
	}
	return ref, true, nil
}

func (r *Recorder) recordLocked(c Call) error {
	r.calls = append(r.calls, c)
	return r.failOps[c.Op]
}

func (r *Recorder) nextMessageIDLocked() int64 {
	r.nextID++
	return r.nextID
}

func (r *Recorder) notify(c Call) {
	if r.OnCall != nil {
		r.OnCall(c)
	}
}

var _ messenger.Messenger = (*Recorder)(nil)
