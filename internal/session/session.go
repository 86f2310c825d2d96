package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/codearena/internal/api"
	"github.com/DoyleJ11/codearena/internal/drafts"
	"github.com/DoyleJ11/codearena/internal/editor"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/notify"
	"github.com/DoyleJ11/codearena/internal/realtime"
	"github.com/DoyleJ11/codearena/internal/sandbox"
	"github.com/DoyleJ11/codearena/pkg/types"
)

var ErrNotReady = errors.New("session not ready")
var ErrClosed = errors.New("session closed")
var ErrNotConfirmed = errors.New("reset not confirmed")

const DefaultSaveDelay = 500 * time.Millisecond

type State string

const (
	StateLoading  State = "loading"
	StateRestored State = "restored"
	StateFresh    State = "fresh"
	StateSyncing  State = "syncing" // a debounced save is pending
	StateIdle     State = "idle"
	StateClosed   State = "closed"
	StateNotFound State = "not-found"
	StateFailed   State = "failed"
)

func (s State) ready() bool {
	switch s {
	case StateRestored, StateFresh, StateSyncing, StateIdle:
		return true
	}
	return false
}

type ChallengeSource interface {
	Challenge(ctx context.Context, id string) (api.Challenge, error)
}

type Submitter interface {
	Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResult, error)
}

type Deps struct {
	Challenges  ChallengeSource
	Submissions Submitter
	Drafts      drafts.Store
	Channels    *realtime.Manager
	Notifier    notify.Notifier
	Log         *zap.Logger
	SaveDelay   time.Duration
	Now         func() time.Time
	// OnChange receives every new view from the controller goroutine.
	OnChange func(View)
}

// View is one consistent render of the session.
type View struct {
	State       State
	ChallengeID string
	Challenge   *api.Challenge
	Code        types.Code
	Origin      editor.Origin
}

// Controller owns one open challenge. All state lives in the loop goroutine.
type Controller struct {
	id    string
	room  string
	deps  Deps
	log   *zap.Logger
	inbox chan Msg

	// loop-owned
	state     State
	challenge *api.Challenge
	editor    editor.State
	ch        realtime.Channel
	reg       *realtime.Registration
	joined    bool
	saveTimer *time.Timer
	saveGen   int
	pending   bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	final     View // written before done is closed
}

// Open starts loading a challenge and returns immediately in StateLoading.
func Open(parent context.Context, deps Deps, challengeID string) *Controller {
	if deps.SaveDelay <= 0 {
		deps.SaveDelay = DefaultSaveDelay
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	ctx, cancel := context.WithCancel(parent)

	c := &Controller{
		id:     challengeID,
		room:   types.ChallengeRoom(challengeID),
		deps:   deps,
		log:    logging.OrNop(deps.Log).With(zap.String("challenge", challengeID)),
		inbox:  make(chan Msg, 64),
		state:  StateLoading,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.loop()
	go c.load()
	return c
}

// load runs outside the loop; the result is dropped if the session closed.
func (c *Controller) load() {
	var res Loaded
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		ch, err := c.deps.Challenges.Challenge(ctx, c.id)
		if err != nil {
			return err
		}
		res.Challenge = ch
		return nil
	})
	g.Go(func() error {
		d, ok, err := c.deps.Drafts.Load(c.id)
		if err != nil {
			// A broken local cache only costs the restore.
			c.log.Warn("draft load failed, starting fresh", zap.Error(err))
			return nil
		}
		res.Draft, res.HasDraft = d, ok
		return nil
	})
	res.Err = g.Wait()
	c.send(res)
}

func (c *Controller) send(m Msg) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Loaded:
				c.onLoaded(msg)

			case LocalEdit:
				msg.Reply <- c.onLocalEdit(msg)

			case RemoteDelta:
				c.onRemoteDelta(msg)

			case SaveDue:
				if msg.Gen == c.saveGen && c.pending {
					c.saveNow()
					c.publish()
				}

			case Reset:
				msg.Reply <- c.onReset()

			case GetView:
				msg.Reply <- c.view()

			case Close:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Controller) onLoaded(msg Loaded) {
	if c.state != StateLoading {
		return
	}
	if msg.Err != nil {
		if errors.Is(msg.Err, api.ErrNotFound) {
			c.log.Info("challenge not found")
			c.state = StateNotFound
		} else {
			c.log.Error("failed to load challenge", zap.Error(msg.Err))
			c.state = StateFailed
		}
		c.publish()
		return
	}

	ch := msg.Challenge
	c.challenge = &ch
	cmd := editor.Command{Type: editor.CmdLoad, Code: ch.Starter(), Origin: editor.OriginStarter}
	c.state = StateFresh
	if msg.HasDraft {
		cmd = editor.Command{Type: editor.CmdLoad, Code: msg.Draft.Code(), Origin: editor.OriginDraft}
		c.state = StateRestored
	}
	_, c.editor, _ = editor.Apply(c.editor, cmd)
	c.publish()

	c.ch = c.deps.Channels.Acquire()
	c.reg = c.ch.On(types.EventCodeUpdate, c.handleCodeUpdate)
	c.ch.Join(c.room)
	c.joined = true
	c.log.Debug("joined room", zap.String("room", c.room))

	c.state = StateIdle
	c.publish()
}

// handleCodeUpdate runs on the channel's dispatch goroutine.
func (c *Controller) handleCodeUpdate(room string, payload json.RawMessage) {
	if room != c.room {
		return
	}
	d, err := realtime.DecodeDelta(payload)
	if err != nil {
		c.log.Warn("bad code-update payload", zap.Error(err))
		return
	}
	if d.RoomID != "" && d.RoomID != c.id {
		return
	}
	c.send(RemoteDelta{Room: room, Delta: d})
}

func (c *Controller) onLocalEdit(msg LocalEdit) error {
	if !c.state.ready() {
		return ErrNotReady
	}
	events, next, err := editor.Apply(c.editor, editor.Command{Type: editor.CmdLocalEdit, Field: msg.Field, Value: msg.Value})
	if err != nil {
		return err
	}
	c.editor = next
	c.scheduleSave()
	c.publish()

	for _, ev := range events {
		c.ch.Emit(types.EventCodeChange, c.room, editor.FieldDelta(c.id, ev.Field, ev.Value))
	}
	return nil
}

// Last applied wins per field; concurrent edits to the same field are lossy.
func (c *Controller) onRemoteDelta(msg RemoteDelta) {
	if !c.state.ready() || msg.Room != c.room {
		return
	}
	_, next, err := editor.Apply(c.editor, editor.Command{Type: editor.CmdRemoteDelta, Delta: msg.Delta})
	if err != nil {
		c.log.Debug("ignoring remote delta", zap.Error(err))
		return
	}
	c.editor = next
	c.scheduleSave()
	c.publish()
}

func (c *Controller) onReset() error {
	if !c.state.ready() {
		return ErrNotReady
	}
	_, next, err := editor.Apply(c.editor, editor.Command{Type: editor.CmdReset, Code: c.challenge.Starter()})
	if err != nil {
		return err
	}
	c.editor = next
	c.saveNow()
	c.publish()
	c.ch.Emit(types.EventCodeChange, c.room, editor.FullDelta(c.id, c.editor.Code))
	return nil
}

// scheduleSave restarts the trailing-edge debounce window.
func (c *Controller) scheduleSave() {
	c.saveGen++
	gen := c.saveGen
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(c.deps.SaveDelay, func() { c.send(SaveDue{Gen: gen}) })
	c.pending = true
	c.state = StateSyncing
}

func (c *Controller) saveNow() {
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.saveGen++
	c.pending = false
	if c.state == StateSyncing {
		c.state = StateIdle
	}

	d := drafts.FromCode(c.id, c.editor.Code, c.deps.Now())
	if err := c.deps.Drafts.Save(c.id, d); err != nil {
		c.log.Error("draft save failed", zap.Error(err))
		return
	}
	c.log.Debug("draft saved")
}

// shutdown flushes before cancelling: no edit made before close is lost.
func (c *Controller) shutdown() {
	if c.pending {
		c.saveNow()
	}
	if c.joined {
		c.ch.Leave(c.room)
		c.ch.Off(c.reg)
		c.deps.Channels.Release()
		c.joined = false
		c.log.Debug("left room", zap.String("room", c.room))
	}
	c.state = StateClosed
	c.final = c.view()
	c.publish()
	c.cancel()
}

func (c *Controller) view() View {
	return View{
		State:       c.state,
		ChallengeID: c.id,
		Challenge:   c.challenge,
		Code:        c.editor.Code,
		Origin:      c.editor.Origin,
	}
}

func (c *Controller) publish() {
	if c.deps.OnChange != nil {
		c.deps.OnChange(c.view())
	}
}

// Edit applies a local keystroke. The new content is visible as soon as Edit
// returns; persistence and broadcast happen on their own.
func (c *Controller) Edit(field editor.Field, value string) error {
	reply := make(chan error, 1)
	if !c.send(LocalEdit{Field: field, Value: value, Reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Reset restores the starter template after confirm approves it. confirm runs
// on the caller's goroutine and may block on the user.
func (c *Controller) Reset(confirm func() bool) error {
	if confirm == nil || !confirm() {
		return ErrNotConfirmed
	}
	reply := make(chan error, 1)
	if !c.send(Reset{Reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Snapshot returns the current view; after Close it returns the final one.
func (c *Controller) Snapshot() View {
	reply := make(chan View, 1)
	if !c.send(GetView{Reply: reply}) {
		return c.final
	}
	select {
	case v := <-reply:
		return v
	case <-c.done:
		return c.final
	}
}

// Preview renders the current content for the live preview frame.
func (c *Controller) Preview() string {
	return sandbox.Render(c.Snapshot().Code)
}

// Submit scores the current content. It never changes editor or sync state.
func (c *Controller) Submit(ctx context.Context) (api.SubmitResult, error) {
	v := c.Snapshot()
	if !v.State.ready() {
		return api.SubmitResult{}, ErrNotReady
	}

	n := c.deps.Notifier
	notify.Info(n, "Submitting your code...")
	res, err := c.deps.Submissions.Submit(ctx, api.SubmitRequest{ChallengeID: c.id, Code: v.Code})
	if err != nil {
		var rej *api.RejectedError
		if errors.As(err, &rej) {
			notify.Error(n, "Submission failed. Try again.")
		} else {
			notify.Error(n, "Something went wrong during submission.")
		}
		c.log.Warn("submission failed", zap.Error(err))
		return api.SubmitResult{}, fmt.Errorf("submit %s: %w", c.id, err)
	}
	notify.Success(n, "Score: %d - %s", res.Score, res.Feedback)
	return res, nil
}

// Close flushes a pending save, leaves the room and stops the controller.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { c.send(Close{}) })
	<-c.done
}

// Done is closed once the controller has shut down.
func (c *Controller) Done() <-chan struct{} { return c.done }
