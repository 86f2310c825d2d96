package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/realtime"
	"github.com/DoyleJ11/codearena/pkg/types"
)

var ErrClosed = errors.New("leaderboard closed")

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty" // "no submissions yet"
	StateError   State = "error"
	StateClosed  State = "closed"
)

type Source interface {
	Leaderboard(ctx context.Context, scope string) ([]Entry, error)
}

type Deps struct {
	Source   Source
	Channels *realtime.Manager
	Log      *zap.Logger
	OnChange func(Snapshot)
}

// Snapshot is a complete ranked view. A newer snapshot replaces it wholesale.
type Snapshot struct {
	Scope   string
	State   State
	Entries []Entry
	Version int // count of snapshots applied
}

type Msg interface{ isBoardMsg() }

type fetched struct {
	gen     int
	entries []Entry
	err     error
}

type refresh struct{ scope string }

type getSnapshot struct{ reply chan Snapshot }

type closeBoard struct{}

func (fetched) isBoardMsg()     {}
func (refresh) isBoardMsg()     {}
func (getSnapshot) isBoardMsg() {}
func (closeBoard) isBoardMsg()  {}

// Controller keeps one scope's ranking current by re-fetching on push.
type Controller struct {
	scope string
	room  string
	deps  Deps
	log   *zap.Logger
	inbox chan Msg

	// loop-owned
	snap Snapshot
	gen  int
	ch   realtime.Channel
	reg  *realtime.Registration

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	final     Snapshot
}

// Subscribe joins leaderboard:{scope} and fetches the first snapshot.
func Subscribe(parent context.Context, deps Deps, scope string) *Controller {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		scope:  scope,
		room:   types.LeaderboardRoom(scope),
		deps:   deps,
		log:    logging.OrNop(deps.Log).With(zap.String("scope", scope)),
		inbox:  make(chan Msg, 16),
		snap:   Snapshot{Scope: scope, State: StateLoading},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.ch = deps.Channels.Acquire()
	c.reg = c.ch.On(types.EventLeaderboardUpdate, c.handleUpdate)
	c.ch.Join(c.room)

	go c.loop()
	c.send(refresh{scope: scope})
	return c
}

// handleUpdate runs on the channel's dispatch goroutine.
func (c *Controller) handleUpdate(room string, payload json.RawMessage) {
	var u types.LeaderboardUpdate
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &u); err != nil {
			c.log.Warn("bad leaderboard-update payload", zap.Error(err))
			return
		}
	}
	if u.Scope == "" {
		u.Scope, _ = types.ScopeFromRoom(room)
	}
	c.send(refresh{scope: u.Scope})
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
			case refresh:
				if msg.scope != c.scope {
					break
				}
				c.gen++
				go c.fetch(c.gen)

			case fetched:
				c.onFetched(msg)

			case getSnapshot:
				msg.reply <- c.snap

			case closeBoard:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Controller) fetch(gen int) {
	entries, err := c.deps.Source.Leaderboard(c.ctx, c.scope)
	c.send(fetched{gen: gen, entries: entries, err: err})
}

// onFetched applies only the newest requested fetch; older answers are stale.
func (c *Controller) onFetched(msg fetched) {
	if msg.gen != c.gen {
		return
	}
	if msg.err != nil {
		c.log.Error("failed to load leaderboard", zap.Error(msg.err))
		c.snap = Snapshot{Scope: c.scope, State: StateError, Entries: c.snap.Entries, Version: c.snap.Version}
		c.publish()
		return
	}

	state := StateReady
	if len(msg.entries) == 0 {
		state = StateEmpty
	}
	c.snap = Snapshot{Scope: c.scope, State: state, Entries: Rank(msg.entries), Version: c.snap.Version + 1}
	c.publish()
}

func (c *Controller) shutdown() {
	c.ch.Leave(c.room)
	c.ch.Off(c.reg)
	c.deps.Channels.Release()
	c.snap.State = StateClosed
	c.final = c.snap
	c.cancel()
}

func (c *Controller) publish() {
	if c.deps.OnChange != nil {
		c.deps.OnChange(c.snap)
	}
}

// Refresh re-fetches on demand.
func (c *Controller) Refresh() error {
	if !c.send(refresh{scope: c.scope}) {
		return ErrClosed
	}
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.send(getSnapshot{reply: reply}) {
		return c.final
	}
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return c.final
	}
}

func (c *Controller) Close() {
	c.closeOnce.Do(func() { c.send(closeBoard{}) })
	<-c.done
}
