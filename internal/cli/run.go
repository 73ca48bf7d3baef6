package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/config"
	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/scheduler"
	"github.com/yourorg/release-relay/internal/server"
	"github.com/yourorg/release-relay/internal/telegram"
)

func cmdRun() *cli.Command {
	var (
		fileCfg   config.File
		githubCfg config.GitHub
		destCfg   config.Destination
		renderCfg config.Render
		loopCfg   config.Loop
		sentryCfg config.Sentry
	)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Poll the repository and mirror its releases",
		Flags: concat(
			fileCfg.Flags(),
			githubCfg.Flags(),
			destCfg.Flags(),
			renderCfg.Flags(),
			loopCfg.Flags(),
			sentryCfg.Flags(),
		),
		Before: fileCfg.Before,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := slog.Default()

			if err := validate(&githubCfg, &destCfg, &renderCfg, &loopCfg); err != nil {
				return err
			}
			if err := sentryCfg.Configure(); err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			logger.Info("Starting release relay",
				slog.String("repo", githubCfg.FullName()),
				slog.String("source", githubCfg.Source),
				slog.String("destination", destCfg.Kind),
				slog.Duration("interval", loopCfg.Interval),
				slog.Any("github", githubCfg),
			)

			client := httpretry.Client(sourceTimeout, maxRetries)
			src, err := githubCfg.NewSource(client)
			if err != nil {
				return goerr.Wrap(err, "failed to create release source")
			}
			dest, err := newDestination(destCfg, logger)
			if err != nil {
				return goerr.Wrap(err, "failed to create destination")
			}
			renderer, err := newRenderer(renderCfg, githubCfg, destCfg.Kind, client, logger)
			if err != nil {
				return goerr.Wrap(err, "failed to create renderer")
			}
			led, closeLedger, err := newLedger(ctx, loopCfg)
			if err != nil {
				return goerr.Wrap(err, "failed to create ledger")
			}
			defer closeLedger()

			opts := []checker.Option{
				checker.WithPageSize(githubCfg.PageSize),
				checker.WithMaxPerCycle(loopCfg.MaxPerCycle),
				checker.WithLogger(logger),
			}
			if sentryCfg.Enabled() {
				opts = append(opts, checker.WithErrorHook(captureError))
			}
			chk := checker.New(githubCfg.Owner, githubCfg.Repo, src, renderer, dest.transport, led, opts...)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			sched := scheduler.New(logger, loopCfg.Interval, chk.Job())
			sched.Start(ctx)

			var srv *server.Server
			if loopCfg.AdminAddr != "" {
				srv = server.NewServer(led,
					server.WithAddr(loopCfg.AdminAddr),
					server.WithLogger(logger),
					server.WithCycles(chk),
					server.WithTrigger(sched),
				)
				go func() {
					logger.Info("Admin server starting", slog.String("addr", loopCfg.AdminAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Admin server error", slog.Any("error", err))
					}
				}()
			}

			if dest.telegramAPI != nil {
				ids, err := destCfg.AdminIDs()
				if err != nil {
					return err
				}
				if len(ids) > 0 {
					bot := telegram.NewBot(dest.telegramAPI, led, sched, ids, logger)
					go bot.StartPolling(ctx)
				}
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			cancel()
			sched.Stop()

			if srv != nil {
				shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer stop()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown admin server gracefully")
				}
			}

			logger.Info("Release relay stopped")
			return nil
		},
	}
}

func captureError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
