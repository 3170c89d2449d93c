package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/secmesh/mcpserver"
	"github.com/hupe1980/secmesh/runner"
	"github.com/hupe1980/secmesh/server"
)

// withRuntime builds the runtime for one command and tears it down after.
// The context is cancelled on SIGINT/SIGTERM.
func (c *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := rt.Close(closeCtx); err != nil {
			c.logger.Warn("runtime.close_failed", "error", err.Error())
		}
	}()

	return fn(ctx, rt)
}

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				srv := server.New(rt.mesh, func(o *server.Options) {
					o.CORSOrigins = c.cfg.Server.CORSOrigins
					o.RateLimit = c.cfg.Server.RateLimit
					o.RateBurst = c.cfg.Server.RateBurst
					o.Logger = c.logger.WithComponent("server")
				})
				return srv.ListenAndServe(ctx, c.cfg.Server.Addr)
			})
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :5000)")
	bind(c.v, cmd, "server.addr", "addr")

	return cmd
}

func newAskCmd(c *cli) *cobra.Command {
	var (
		multi   bool
		asJSON  bool
		traceID string
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask one question and print the final answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				req := runner.Request{Message: strings.Join(args, " "), TraceID: traceID}

				ask := rt.mesh.Ask
				if multi {
					ask = rt.mesh.AskPipeline
				}

				answer, err := ask(ctx, req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(answer)
				}

				if answer.Report != nil {
					for _, st := range answer.Report.Stages {
						fmt.Fprintf(out, "## %s\n\n%s\n\n", st.Title, st.Summary)
					}
					return nil
				}

				fmt.Fprintln(out, answer.Text)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&multi, "multi", false, "use the specialist pipeline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "external trace id")

	return cmd
}

func newStreamCmd(c *cli) *cobra.Command {
	var (
		multi   bool
		traceID string
	)

	cmd := &cobra.Command{
		Use:   "stream <message>",
		Short: "Print the step records of one run as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				req := runner.Request{Message: strings.Join(args, " "), TraceID: traceID}

				start := rt.mesh.Stream
				if multi {
					start = rt.mesh.StreamPipeline
				}

				return writeRecords(cmd.OutOrStdout(), start(ctx, req).Records())
			})
		},
	}

	cmd.Flags().BoolVar(&multi, "multi", false, "use the specialist pipeline")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "external trace id")

	return cmd
}

// writeRecords prints records as JSON lines. It fails when the run ended on
// an Error record or stopped before a terminal one.
func writeRecords(w io.Writer, records iter.Seq[runner.StepRecord]) error {
	enc := json.NewEncoder(w)

	var last runner.StepRecord
	for rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
		last = rec
	}

	switch {
	case last.Step == runner.StepError:
		return fmt.Errorf("run %s failed: %s", last.TraceID, last.Content)
	case !last.IsTerminal():
		return fmt.Errorf("run %s ended without a final record", last.TraceID)
	}

	return nil
}

func newEnrichCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Link related findings in the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				report, err := rt.mesh.Enrich(ctx)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}

	cmd.Flags().Int("limit", 0, "maximum candidate pairs (default 5)")
	bind(c.v, cmd, "enrich.limit", "limit")

	return cmd
}

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tool catalog over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				srv, err := mcpserver.New(rt.mesh, func(o *mcpserver.Options) {
					o.Logger = c.logger.WithComponent("mcp")
				})
				if err != nil {
					return err
				}
				return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
