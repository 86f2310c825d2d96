package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DoyleJ11/codearena/internal/api"
	"github.com/DoyleJ11/codearena/internal/drafts"
	"github.com/DoyleJ11/codearena/internal/editor"
	"github.com/DoyleJ11/codearena/internal/leaderboard"
	"github.com/DoyleJ11/codearena/internal/realtime"
	"github.com/DoyleJ11/codearena/internal/replay"
	"github.com/DoyleJ11/codearena/internal/sandbox"
	"github.com/DoyleJ11/codearena/internal/session"
	"github.com/DoyleJ11/codearena/pkg/types"
)

const connectWait = 2 * time.Second

// openSession opens the draft store and a session on one challenge. The
// returned close flushes the session before the store is released.
func (a *app) openSession(ctx context.Context, id string, onChange func(session.View)) (*session.Controller, func(), error) {
	store, err := drafts.OpenBolt(a.cfg.DraftsPath)
	if err != nil {
		return nil, nil, err
	}
	s := session.Open(ctx, session.Deps{
		Challenges:  a.api,
		Submissions: a.api,
		Drafts:      store,
		Channels:    a.channels,
		Notifier:    a.notify,
		Log:         a.log,
		SaveDelay:   a.cfg.SaveDelay,
		OnChange:    onChange,
	}, id)
	return s, func() {
		s.Close()
		_ = store.Close()
	}, nil
}

// awaitReady waits until the challenge is loaded and editable.
func awaitReady(ctx context.Context, s *session.Controller) (session.View, error) {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		v := s.Snapshot()
		switch v.State {
		case session.StateIdle, session.StateSyncing, session.StateRestored, session.StateFresh:
			return v, nil
		case session.StateNotFound:
			return v, fmt.Errorf("challenge %s: %w", v.ChallengeID, api.ErrNotFound)
		case session.StateFailed:
			return v, fmt.Errorf("challenge %s: failed to load", v.ChallengeID)
		case session.StateClosed:
			return v, session.ErrClosed
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-tick.C:
		}
	}
}

// awaitGateway gives the shared connection a moment to come up so the first
// emitted change is not dropped. A missing gateway is not fatal.
func (a *app) awaitGateway(ctx context.Context) {
	ch := a.channels.Acquire()
	defer a.channels.Release()
	c, ok := ch.(*realtime.Client)
	if !ok {
		return
	}
	deadline := time.Now().Add(connectWait)
	for !c.Connected() && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}
	if !c.Connected() {
		a.log.Warn("gateway unreachable, changes stay local")
	}
}

func challengeArg(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("%w: %s takes %d argument(s)", errUsage, fs.Name(), want)
	}
	return fs.Args(), nil
}

func (a *app) challenges(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("challenges", flag.ContinueOnError)
	if _, err := challengeArg(fs, args, 0); err != nil {
		return err
	}
	list, err := a.api.Challenges(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDIFFICULTY")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.Difficulty)
	}
	return tw.Flush()
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	preview := fs.String("preview", "", "rewrite this file with the sandboxed preview on every change")
	rest, err := challengeArg(fs, args, 1)
	if err != nil {
		return err
	}

	views := newLatest[session.View]()
	s, closeSession, err := a.openSession(ctx, rest[0], views.put)
	if err != nil {
		return err
	}
	defer closeSession()
	if _, err := awaitReady(ctx, s); err != nil {
		return err
	}
	a.log.Info("watching, ctrl-c to stop")

	var last types.Code
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views.ch:
			if v.State == session.StateClosed {
				return nil
			}
			if v.Code == last {
				continue
			}
			last = v.Code
			fmt.Fprintf(a.out, "[%s] %s from %s\n", time.Now().Format("15:04:05"), v.State, v.Origin)
			for _, f := range editor.Fields {
				fmt.Fprintf(a.out, "  %-4s %d bytes\n", f, len(editor.Get(v.Code, f)))
			}
			if *preview != "" {
				doc := sandbox.Frame(sandbox.Render(v.Code), "Preview")
				if err := os.WriteFile(*preview, []byte(doc), 0o644); err != nil {
					a.log.Sugar().Warnf("write preview: %v", err)
				}
			}
		}
	}
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	rest, err := challengeArg(fs, args, 3)
	if err != nil {
		return err
	}
	field, err := editor.ParseField(rest[1])
	if err != nil {
		return err
	}
	value, err := readSource(rest[2], a.in)
	if err != nil {
		return err
	}

	s, closeSession, err := a.openSession(ctx, rest[0], nil)
	if err != nil {
		return err
	}
	defer closeSession()
	if _, err := awaitReady(ctx, s); err != nil {
		return err
	}
	a.awaitGateway(ctx)
	if err := s.Edit(field, value); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s updated (%d bytes)\n", field, len(value))
	return nil
}

func (a *app) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	rest, err := challengeArg(fs, args, 1)
	if err != nil {
		return err
	}

	s, closeSession, err := a.openSession(ctx, rest[0], nil)
	if err != nil {
		return err
	}
	defer closeSession()
	if _, err := awaitReady(ctx, s); err != nil {
		return err
	}
	a.awaitGateway(ctx)

	confirm := func() bool {
		return *yes || ask(a.in, a.out, "Reset to the starter code? Your changes will be lost.")
	}
	if err := s.Reset(confirm); err != nil {
		if errors.Is(err, session.ErrNotConfirmed) {
			fmt.Fprintln(a.out, "reset cancelled")
			return nil
		}
		return err
	}
	fmt.Fprintln(a.out, "code reset to starter")
	return nil
}

func (a *app) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	rest, err := challengeArg(fs, args, 1)
	if err != nil {
		return err
	}

	s, closeSession, err := a.openSession(ctx, rest[0], nil)
	if err != nil {
		return err
	}
	defer closeSession()
	if _, err := awaitReady(ctx, s); err != nil {
		return err
	}
	// The session already told the user how it went.
	_, err = s.Submit(ctx)
	return err
}

func (a *app) render(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	out := fs.String("o", "", "write to this file instead of stdout")
	frame := fs.Bool("frame", false, "wrap the document in its sandboxed iframe")
	rest, err := challengeArg(fs, args, 1)
	if err != nil {
		return err
	}

	s, closeSession, err := a.openSession(ctx, rest[0], nil)
	if err != nil {
		return err
	}
	defer closeSession()
	if _, err := awaitReady(ctx, s); err != nil {
		return err
	}
	doc := s.Preview()
	if *frame {
		doc = sandbox.Frame(doc, "Preview")
	}
	return writeOut(*out, a.out, doc)
}

func (a *app) leaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	scope := fs.String("scope", types.ScopeGlobal, `"global" or a challenge id`)
	follow := fs.Bool("watch", false, "keep the ranking live until interrupted")
	best := fs.Bool("best", false, "one row per player with their best score")
	if _, err := challengeArg(fs, args, 0); err != nil {
		return err
	}
	if *best {
		if *follow {
			return fmt.Errorf("%w: -best cannot be watched", errUsage)
		}
		rows, err := a.api.BestScores(ctx)
		if err != nil {
			return err
		}
		printBest(a.out, rows)
		return nil
	}

	snaps := newLatest[leaderboard.Snapshot]()
	board := leaderboard.Subscribe(ctx, leaderboard.Deps{
		Source:   a.api,
		Channels: a.channels,
		Log:      a.log,
		OnChange: snaps.put,
	}, *scope)
	defer board.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-snaps.ch:
			printBoard(a.out, snap)
			if !*follow {
				if snap.State == leaderboard.StateError {
					return fmt.Errorf("leaderboard %s unavailable", *scope)
				}
				return nil
			}
		}
	}
}

func printBoard(w io.Writer, snap leaderboard.Snapshot) {
	switch snap.State {
	case leaderboard.StateEmpty:
		fmt.Fprintln(w, "No submissions yet")
		return
	case leaderboard.StateError:
		fmt.Fprintln(w, "Leaderboard unavailable")
		if len(snap.Entries) == 0 {
			return
		}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLAYER\tSCORE\tSTREAK\tCHALLENGE")
	for i, e := range snap.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", i+1, e.DisplayName(), e.Score, e.Streak(), e.ChallengeTitle)
	}
	_ = tw.Flush()
}

func printBest(w io.Writer, rows []api.BestScore) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No submissions yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tBEST")
	for i, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", badge(i+1), r.Name(), r.BestScore)
	}
	_ = tw.Flush()
}

func badge(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return fmt.Sprintf("#%d", rank)
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	if _, err := challengeArg(fs, args, 0); err != nil {
		return err
	}
	subs, err := a.api.UserSubmissions(ctx)
	if err != nil {
		return err
	}
	weeks, err := a.api.WeeklyHistory(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHALLENGE\tSCORE\tPASSED\tWHEN")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", s.ID, s.ChallengeTitle, s.Score, s.Passed, s.SubmittedAt.Format(time.DateOnly))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "WEEK\tSCORE\tSUBMISSIONS")
	for _, w := range weeks {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", w.Label, w.Score, w.Submissions)
	}
	return tw.Flush()
}

func (a *app) replay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	id := fs.String("submission", "", "one of your submissions, by id")
	scope := fs.String("scope", types.ScopeGlobal, "leaderboard to pick -rank from")
	rank := fs.Int("rank", 0, "leaderboard position, starting at 1")
	tab := fs.String("tab", "", "print one source tab (html, css, js) instead of the document")
	out := fs.String("o", "", "write to this file instead of stdout")
	if _, err := challengeArg(fs, args, 0); err != nil {
		return err
	}

	var p replay.Payload
	switch {
	case *id != "":
		subs, err := a.api.UserSubmissions(ctx)
		if err != nil {
			return err
		}
		sub, ok := findSubmission(subs, *id)
		if !ok {
			return fmt.Errorf("submission %s: %w", *id, api.ErrNotFound)
		}
		p = sub
	case *rank > 0:
		entries, err := a.api.Leaderboard(ctx, *scope)
		if err != nil {
			return err
		}
		ranked := leaderboard.Rank(entries)
		if *rank > len(ranked) {
			return fmt.Errorf("leaderboard %s has %d entries", *scope, len(ranked))
		}
		p = ranked[*rank-1]
	default:
		return fmt.Errorf("%w: replay needs -submission or -rank", errUsage)
	}

	r := replay.Open(p)
	fmt.Fprintln(os.Stderr, r.Heading())
	if *tab != "" {
		f, err := editor.ParseField(*tab)
		if err != nil {
			return err
		}
		return writeOut(*out, a.out, r.Tab(f))
	}
	return writeOut(*out, a.out, r.Frame())
}

func findSubmission(subs []api.Submission, id string) (api.Submission, bool) {
	for _, s := range subs {
		if s.ID == id {
			return s, true
		}
	}
	return api.Submission{}, false
}

// readSource reads a file, or stdin for "-".
func readSource(name string, stdin io.Reader) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(name)
	return string(b), err
}

func writeOut(path string, w io.Writer, s string) error {
	if path == "" {
		_, err := io.WriteString(w, s)
		return err
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

func ask(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// latest hands the newest value from a controller callback to the main
// goroutine. put never blocks; an unread value is replaced.
type latest[T any] struct {
	ch chan T
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan T, 1)}
}

func (l *latest[T]) put(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}
