package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/codearena/internal/api"
	"github.com/DoyleJ11/codearena/internal/drafts"
	"github.com/DoyleJ11/codearena/internal/editor"
	"github.com/DoyleJ11/codearena/internal/notify"
	"github.com/DoyleJ11/codearena/internal/realtime"
	"github.com/DoyleJ11/codearena/pkg/types"
)

var starter = types.Code{HTML: "<div>Hi</div>", CSS: "", JS: ""}

type fakeChallenges struct {
	byID map[string]api.Challenge
	gate chan struct{} // when set, lookups wait for it
}

func (f *fakeChallenges) Challenge(ctx context.Context, id string) (api.Challenge, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return api.Challenge{}, ctx.Err()
		}
	}
	ch, ok := f.byID[id]
	if !ok {
		return api.Challenge{}, api.ErrNotFound
	}
	return ch, nil
}

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResult, error) {
	args := m.Called(req)
	return args.Get(0).(api.SubmitResult), args.Error(1)
}

// countingStore records every write so tests can check coalescing.
type countingStore struct {
	*drafts.MemoryStore
	mu    sync.Mutex
	saves []drafts.Draft
}

func (s *countingStore) Save(id string, d drafts.Draft) error {
	s.mu.Lock()
	s.saves = append(s.saves, d)
	s.mu.Unlock()
	return s.MemoryStore.Save(id, d)
}

func (s *countingStore) Saves() []drafts.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]drafts.Draft(nil), s.saves...)
}

type viewer struct {
	bus      *realtime.Bus
	conn     *realtime.BusChannel
	channels *realtime.Manager
	store    *countingStore
	notes    *notify.Recorder
	submit   *mockSubmitter
	ctrl     *Controller
}

func newDeps(t *testing.T, bus *realtime.Bus, delay time.Duration) (Deps, *viewer) {
	t.Helper()
	v := &viewer{
		bus:    bus,
		conn:   bus.Connect(),
		store:  &countingStore{MemoryStore: drafts.NewMemoryStore()},
		notes:  &notify.Recorder{},
		submit: &mockSubmitter{},
	}
	v.channels = realtime.NewManager(func() realtime.Transport { return v.conn })
	t.Cleanup(func() { _ = v.channels.Close() })

	deps := Deps{
		Challenges:  &fakeChallenges{byID: map[string]api.Challenge{"c1": {ID: "c1", Title: "Hello", StarterCode: &starter}}},
		Submissions: v.submit,
		Drafts:      v.store,
		Channels:    v.channels,
		Notifier:    v.notes,
		SaveDelay:   delay,
	}
	return deps, v
}

func open(t *testing.T, deps Deps, v *viewer) *Controller {
	t.Helper()
	v.ctrl = Open(context.Background(), deps, "c1")
	t.Cleanup(v.ctrl.Close)
	waitState(t, v.ctrl, StateIdle)
	return v.ctrl
}

func waitState(t *testing.T, c *Controller, want State) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		last = c.Snapshot()
		return last.State == want
	}, 2*time.Second, 5*time.Millisecond, "want state %s", want)
	return last
}

func TestOpen_FreshUsesStarterVerbatim(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 0)
	c := open(t, deps, v)

	view := c.Snapshot()
	assert.Equal(t, starter, view.Code)
	assert.Equal(t, editor.OriginStarter, view.Origin)
	assert.Equal(t, "Hello", view.Challenge.Title)
	assert.Equal(t, 1, v.bus.Members(types.ChallengeRoom("c1")))
}

func TestOpen_RestoresDraftVerbatim(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 0)
	require.NoError(t, v.store.MemoryStore.Save("c1", drafts.Draft{HTML: "<p>saved</p>", JS: "x()"}))

	var mu sync.Mutex
	var states []State
	deps.OnChange = func(view View) {
		mu.Lock()
		states = append(states, view.State)
		mu.Unlock()
	}
	c := open(t, deps, v)

	assert.Equal(t, types.Code{HTML: "<p>saved</p>", JS: "x()"}, c.Snapshot().Code)
	assert.Equal(t, editor.OriginDraft, c.Snapshot().Origin)
	mu.Lock()
	assert.Equal(t, []State{StateRestored, StateIdle}, states)
	mu.Unlock()
}

func TestEdit_SavesAfterDebounce(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 500*time.Millisecond)
	c := open(t, deps, v)

	require.NoError(t, c.Edit(editor.FieldHTML, "<p>Edited</p>"))
	// Local echo is immediate.
	assert.Equal(t, "<p>Edited</p>", c.Snapshot().Code.HTML)
	assert.Equal(t, StateSyncing, c.Snapshot().State)

	time.Sleep(200 * time.Millisecond)
	_, ok, _ := v.store.Load("c1")
	assert.False(t, ok, "saved before the debounce window elapsed")

	require.Eventually(t, func() bool {
		d, ok, _ := v.store.Load("c1")
		return ok && d.Code() == types.Code{HTML: "<p>Edited</p>", CSS: "", JS: ""}
	}, 2*time.Second, 10*time.Millisecond)
	waitState(t, c, StateIdle)
}

func TestEdit_CoalescesBurstIntoOneSave(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 100*time.Millisecond)
	c := open(t, deps, v)

	for _, s := range []string{"<", "<p", "<p>", "<p>a", "<p>ab"} {
		require.NoError(t, c.Edit(editor.FieldHTML, s))
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, c.Edit(editor.FieldCSS, "p{}"))

	require.Eventually(t, func() bool { return len(v.store.Saves()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	saves := v.store.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, types.Code{HTML: "<p>ab", CSS: "p{}"}, saves[0].Code())
}

func TestRemoteDelta_OnlyTouchesPresentFields(t *testing.T) {
	bus := realtime.NewBus()
	depsA, a := newDeps(t, bus, time.Hour)
	depsB, b := newDeps(t, bus, time.Hour)
	ctrlA := open(t, depsA, a)
	ctrlB := open(t, depsB, b)
	assert.Equal(t, 2, bus.Members(types.ChallengeRoom("c1")))

	require.NoError(t, ctrlB.Edit(editor.FieldHTML, "<b>mine</b>"))
	require.Eventually(t, func() bool { return ctrlA.Snapshot().Code.HTML == "<b>mine</b>" }, time.Second, 5*time.Millisecond)

	require.NoError(t, ctrlA.Edit(editor.FieldCSS, "body{color:red}"))
	require.Eventually(t, func() bool { return ctrlB.Snapshot().Code.CSS == "body{color:red}" }, time.Second, 5*time.Millisecond)

	got := ctrlB.Snapshot()
	assert.Equal(t, "<b>mine</b>", got.Code.HTML)
	assert.Equal(t, "", got.Code.JS)
	assert.Equal(t, editor.OriginRemote, got.Origin)
}

func TestRemoteDelta_ForOtherChallengeIgnored(t *testing.T) {
	bus := realtime.NewBus()
	deps, v := newDeps(t, bus, time.Hour)
	c := open(t, deps, v)

	other := bus.Connect()
	defer other.Close()
	other.Join(types.ChallengeRoom("c1"))
	css := "x{}"
	other.Emit(types.EventCodeChange, types.ChallengeRoom("c1"), types.CodeDelta{RoomID: "c2", CSS: &css})
	html := "<i>ok</i>"
	other.Emit(types.EventCodeChange, types.ChallengeRoom("c1"), types.CodeDelta{RoomID: "c1", HTML: &html})

	require.Eventually(t, func() bool { return c.Snapshot().Code.HTML == html }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", c.Snapshot().Code.CSS)
}

func TestClose_FlushesPendingSaveAndLeaves(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), time.Hour)
	c := open(t, deps, v)

	require.NoError(t, c.Edit(editor.FieldJS, "alert('bye')"))
	c.Close()

	d, ok, err := v.store.Load("c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alert('bye')", d.JS)

	assert.Equal(t, 0, v.bus.Members(types.ChallengeRoom("c1")))
	assert.Equal(t, 0, v.conn.Handlers(types.EventCodeUpdate))
	assert.Equal(t, 0, v.channels.Refs())
	assert.Equal(t, StateClosed, c.Snapshot().State)
	assert.ErrorIs(t, c.Edit(editor.FieldJS, "late"), ErrClosed)

	c.Close() // idempotent
	assert.Len(t, v.store.Saves(), 1)
}

func TestClose_BeforeLoadIgnoresLateFetch(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 0)
	gate := make(chan struct{})
	deps.Challenges.(*fakeChallenges).gate = gate

	c := Open(context.Background(), deps, "c1")
	assert.Equal(t, StateLoading, c.Snapshot().State)
	c.Close()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateClosed, c.Snapshot().State)
	assert.Equal(t, 0, v.bus.Members(types.ChallengeRoom("c1")))
	assert.Empty(t, v.store.Saves())
}

func TestOpen_MissingChallengeIsNotFound(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), 0)
	v.ctrl = Open(context.Background(), deps, "nope")
	defer v.ctrl.Close()

	waitState(t, v.ctrl, StateNotFound)
	assert.ErrorIs(t, v.ctrl.Edit(editor.FieldHTML, "x"), ErrNotReady)
	assert.Equal(t, 0, v.bus.Members(types.ChallengeRoom("nope")))
}

func TestReset_RequiresConfirmationAndConverges(t *testing.T) {
	bus := realtime.NewBus()
	depsA, a := newDeps(t, bus, time.Hour)
	depsB, b := newDeps(t, bus, time.Hour)
	ctrlA := open(t, depsA, a)
	ctrlB := open(t, depsB, b)

	require.NoError(t, ctrlA.Edit(editor.FieldHTML, "<p>mess</p>"))
	require.NoError(t, ctrlA.Edit(editor.FieldJS, "oops()"))
	require.Eventually(t, func() bool { return ctrlB.Snapshot().Code.JS == "oops()" }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, ctrlA.Reset(func() bool { return false }), ErrNotConfirmed)
	assert.Equal(t, "oops()", ctrlA.Snapshot().Code.JS)

	require.NoError(t, ctrlA.Reset(func() bool { return true }))
	assert.Equal(t, starter, ctrlA.Snapshot().Code)

	// Persisted immediately, not after the hour-long debounce.
	d, ok, _ := a.store.Load("c1")
	require.True(t, ok)
	assert.Equal(t, starter, d.Code())

	require.Eventually(t, func() bool { return ctrlB.Snapshot().Code == starter }, time.Second, 5*time.Millisecond)
}

func TestSubmit_NetworkErrorLeavesEditorUntouched(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), time.Hour)
	c := open(t, deps, v)
	require.NoError(t, c.Edit(editor.FieldCSS, "h1{}"))
	before := c.Snapshot()

	v.submit.On("Submit", api.SubmitRequest{ChallengeID: "c1", Code: before.Code}).
		Return(api.SubmitResult{}, &api.TransportError{Op: "POST /api/submissions", Err: errors.New("connection refused")}).Once()

	_, err := c.Submit(context.Background())
	var tr *api.TransportError
	require.ErrorAs(t, err, &tr)

	after := c.Snapshot()
	assert.Equal(t, before.Code, after.Code)
	assert.Equal(t, before.State, after.State)

	notes := v.notes.Notices()
	require.NotEmpty(t, notes)
	assert.Equal(t, notify.Notice{Level: notify.LevelError, Message: "Something went wrong during submission."}, notes[len(notes)-1])
	v.submit.AssertExpectations(t)
}

func TestSubmit_RejectedAndSuccess(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), time.Hour)
	c := open(t, deps, v)

	req := api.SubmitRequest{ChallengeID: "c1", Code: starter}
	v.submit.On("Submit", req).Return(api.SubmitResult{}, &api.RejectedError{Status: 200}).Once()
	v.submit.On("Submit", req).Return(api.SubmitResult{Success: true, Score: 92, Feedback: "Great"}, nil).Once()

	_, err := c.Submit(context.Background())
	var rej *api.RejectedError
	require.ErrorAs(t, err, &rej)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 92, res.Score)

	notes := v.notes.Notices()
	require.Len(t, notes, 4)
	assert.Equal(t, "Submission failed. Try again.", notes[1].Message)
	assert.Equal(t, notify.Notice{Level: notify.LevelSuccess, Message: "Score: 92 - Great"}, notes[3])
	v.submit.AssertExpectations(t)
}

func TestPreview_TracksContent(t *testing.T) {
	deps, v := newDeps(t, realtime.NewBus(), time.Hour)
	c := open(t, deps, v)
	assert.Contains(t, c.Preview(), "<div>Hi</div>")

	require.NoError(t, c.Edit(editor.FieldHTML, "<h1>New</h1>"))
	assert.Contains(t, c.Preview(), "<h1>New</h1>")
	assert.NotContains(t, c.Preview(), "<div>Hi</div>")
}

func TestEdit_SurvivesDisconnect(t *testing.T) {
	bus := realtime.NewBus()
	depsA, a := newDeps(t, bus, time.Hour)
	depsB, b := newDeps(t, bus, time.Hour)
	ctrlA := open(t, depsA, a)
	ctrlB := open(t, depsB, b)

	a.conn.Disconnect()
	require.NoError(t, ctrlA.Edit(editor.FieldHTML, "<p>offline</p>"))
	assert.Equal(t, "<p>offline</p>", ctrlA.Snapshot().Code.HTML)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, starter.HTML, ctrlB.Snapshot().Code.HTML, "missed deltas are not replayed")

	a.conn.Reconnect()
	require.NoError(t, ctrlA.Edit(editor.FieldCSS, "p{}"))
	require.Eventually(t, func() bool { return ctrlB.Snapshot().Code.CSS == "p{}" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, starter.HTML, ctrlB.Snapshot().Code.HTML)
}
