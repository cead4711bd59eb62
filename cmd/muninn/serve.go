package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"muninn/internal/queue"
	"muninn/internal/server"
	"muninn/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the long-lived stdio server",
	Long: `Speaks a JSON-RPC-style protocol on stdin/stdout, advertising the
query-surface tools and resource URIs. Recoverable errors never end the
loop; SIGTERM/SIGINT flushes the open session and exits 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sessions := session.NewManager(a.store, a.project.ID)
		sessions.Inferrer = session.InferOutcome
		sessions.SelfExe = queue.SelfExecutable()
		sessions.SpawnArgs = []string{"worker", "--once", "--workspace", a.repoRoot}

		srv := server.New(a.store, a.engine, a.project, sessions, a.repoRoot)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			select {
			case <-sigs:
				cancel()
			case <-ctx.Done():
			}
		}()

		runErr := srv.Run(ctx, os.Stdin, os.Stdout)

		// Flush the session on every exit path; shutdown must never lose
		// the end-of-session job cascade.
		if err := sessions.End(context.Background()); err != nil {
			logger.Warn("session flush on shutdown failed: " + err.Error())
		}

		if runErr != nil && ctx.Err() == nil {
			return runErr
		}
		return nil
	},
}
