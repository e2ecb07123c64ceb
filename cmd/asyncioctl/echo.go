//go:build linux || darwin

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ygrebnov/asyncio/iocore"
	"github.com/ygrebnov/asyncio/metrics"
)

func newEchoCmd() *cobra.Command {
	var addr string
	var workers uint
	var printMetrics bool

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Bind, accept, and echo connections back to their sender using IOCore",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(addr, workers, printMetrics, newLogger())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "address to listen on")
	cmd.Flags().UintVar(&workers, "workers", 0, "IOCore worker goroutines (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&printMetrics, "metrics", false, "log counter totals (sockets attached, events dispatched, accept retries) on shutdown")
	return cmd
}

func runEcho(addr string, workers uint, printMetrics bool, log zerolog.Logger) error {
	opts := []iocore.Option{iocore.WithLogger(log)}
	var mp *metrics.BasicProvider
	if printMetrics {
		mp = metrics.NewBasicProvider()
		opts = append(opts, iocore.WithMetricsProvider(mp))
	}

	core, err := iocore.NewOptions(opts...)
	if err != nil {
		return fmt.Errorf("construct core: %w", err)
	}
	if err := core.Start(workers); err != nil {
		return fmt.Errorf("start core: %w", err)
	}
	defer func() {
		_ = core.Close()
		if mp != nil {
			log.Info().Interface("counters", mp.Counters()).Msg("iocore counters")
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	lf, err := ln.(*net.TCPListener).File()
	if err != nil {
		return fmt.Errorf("listener fd: %w", err)
	}
	defer lf.Close()
	lfd := int(lf.Fd())
	if err := unix.SetNonblock(lfd, true); err != nil {
		return fmt.Errorf("set nonblock: %w", err)
	}

	acc := &acceptor{core: core, log: log}
	if _, err := core.AttachSocket(lfd, acc); err != nil {
		return fmt.Errorf("attach listener: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// acceptor is the Subscriber attached to the listening socket: every
// dispatch it drains Accept until the backend reports the operation has
// locked, handing each accepted connection its own echoConn subscriber.
type acceptor struct {
	core *iocore.Core
	log  zerolog.Logger
}

func (a *acceptor) OnEvent(t *iocore.IOTask, _ iocore.Events) {
	for {
		ok, locked, fd, err := a.core.Accept(t)
		if !ok {
			a.log.Error().Err(err).Msg("accept failed, closing listener")
			_ = a.core.PostClose(t)
			return
		}
		if locked {
			return
		}
		if fd == 0 {
			// Non-critical accept condition (peer reset or was routed away
			// before accept() completed it): no connection was produced and
			// nothing is in flight. Retry on the next dispatch instead of
			// spinning here.
			t.Reschedule()
			return
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fd)
			continue
		}
		ec := &echoConn{core: a.core, log: a.log}
		if _, err := a.core.AttachSocket(fd, ec); err != nil {
			a.log.Error().Err(err).Msg("attach accepted socket")
			_ = unix.Close(fd)
		}
	}
}

// echoConn mirrors back whatever it reads until the peer closes or an error
// occurs, at which point it requests close itself. Its buf is untouched
// outside OnEvent, which IOCore guarantees never runs concurrently for the
// same task.
type echoConn struct {
	core *iocore.Core
	log  zerolog.Logger

	buf [4096]byte
}

func (c *echoConn) OnEvent(t *iocore.IOTask, ev iocore.Events) {
	if ev.Closed {
		return
	}

	ok, locked, n, err := c.core.Recv(t, c.buf[:])
	if !ok {
		c.log.Debug().Err(err).Msg("recv error, closing")
		_ = c.core.PostClose(t)
		return
	}
	if locked {
		return
	}
	if n == 0 {
		_ = c.core.PostClose(t)
		return
	}

	if _, _, _, err := c.core.Send(t, c.buf[:n]); err != nil {
		c.log.Debug().Err(err).Msg("send error, closing")
		_ = c.core.PostClose(t)
	}
}
