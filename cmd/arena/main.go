package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/api"
	"github.com/DoyleJ11/codearena/internal/config"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/notify"
	"github.com/DoyleJ11/codearena/internal/realtime"
)

const usage = `usage: arena <command> [flags] [args]

commands:
  challenges                         list the challenge catalog
  watch <challenge>                  follow a challenge live and print every change
  edit <challenge> <field> <file|->  replace html, css or js and broadcast it
  reset <challenge>                  restore the starter template
  submit <challenge>                 score the current code
  render <challenge>                 print the sandboxed preview document
  leaderboard                        show a ranking (-scope, -watch, -best)
  history                            your submissions and weekly stats
  replay                             open a past submission (-submission or -rank)
`

var errUsage = errors.New("bad usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "arena:", err)
		os.Exit(1)
	}
}

// app holds what every command shares: one API client and one lazily dialed
// gateway connection.
type app struct {
	cfg      config.Client
	log      *zap.Logger
	api      *api.Client
	notify   notify.Notifier
	channels *realtime.Manager
	in       io.Reader
	out      io.Writer
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a := newApp(ctx, cfg, logger, in, out)
	defer a.channels.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "challenges":
		return a.challenges(ctx, rest)
	case "watch":
		return a.watch(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "reset":
		return a.reset(ctx, rest)
	case "submit":
		return a.submit(ctx, rest)
	case "render":
		return a.render(ctx, rest)
	case "leaderboard":
		return a.leaderboard(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	case "replay":
		return a.replay(ctx, rest)
	case "help", "-h", "--help":
		return flag.ErrHelp
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newApp(ctx context.Context, cfg config.Client, logger *zap.Logger, in io.Reader, out io.Writer) *app {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	a := &app{
		cfg:    cfg,
		log:    logger,
		api:    api.New(cfg.APIURL, api.WithTokens(api.StaticToken(cfg.Token)), api.WithLogger(logger)),
		notify: notify.NewTerminal(out),
		in:     in,
		out:    out,
	}
	a.channels = realtime.NewManager(func() realtime.Transport {
		return realtime.Dial(ctx, cfg.GatewayURL,
			realtime.WithLogger(logger),
			realtime.WithHeader(header))
	})
	return a
}
