package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-invoice/cmd/invoicectl/cli"
	"github.com/odyssey-erp/odyssey-invoice/internal/app"
	"github.com/odyssey-erp/odyssey-invoice/internal/observability"
)

// exitCode carries a non-zero exit status out of a command. The command has
// already reported the failure.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func fail(code int) error {
	if code == cli.ExitOK {
		return nil
	}
	return exitCode(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the invoice document service",
		Long: `invoicectl renders invoices locally and manages the email queue.

Example:
  invoicectl render --input invoice.json --out ./out
  invoicectl email --account <uuid> --invoice <uuid>
  invoicectl queue --retries 10`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.PrintErrln(cmd.UsageString())
			return fail(cli.ExitUsage)
		},
	}
	root.AddCommand(newRenderCmd(), newEmailCmd(), newQueueCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		cmd.PrintErrf("load config: %v\n", err)
		return nil, fail(cli.ExitUsage)
	}
	return cfg, nil
}

func newRenderCmd() *cobra.Command {
	var opts cli.RenderOptions
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a JSON invoice request to PDF",
		Long: `Render a JSON invoice request to PDF, or to HTML with --html.

Exit codes: 0 success, 1 usage, 2 invalid request, 3 generation failure.

Example:
  invoicectl render --input invoice.json --out ./out --template 2
  cat invoice.json | invoicectl render --input - --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			stack, err := app.NewDocumentStack(cfg, logger, observability.NewMetrics(), nil)
			if err != nil {
				cmd.PrintErrf("render: %v\n", err)
				return fail(cli.ExitUsage)
			}
			opts.Stdin = cmd.InOrStdin()
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return fail(cli.NewRenderCLI(stack.Service).RenderCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().StringVar(&opts.Input, "input", "", "path to the render request JSON, - for stdin")
	cmd.Flags().StringVar(&opts.OutputDir, "out", ".", "directory for the generated file")
	cmd.Flags().StringVar(&opts.Template, "template", "", "template id override")
	cmd.Flags().BoolVar(&opts.HTMLOnly, "html", false, "write the markup instead of printing")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print a JSON summary")
	return cmd
}

func newEmailCmd() *cobra.Command {
	var account, invoiceID, recipient string
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Enqueue an invoice email for a stored invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(account)
			if err != nil {
				cmd.PrintErrln("email: --account must be a uuid")
				return fail(cli.ExitUsage)
			}
			invID, err := uuid.Parse(invoiceID)
			if err != nil {
				cmd.PrintErrln("email: --invoice must be a uuid")
				return fail(cli.ExitUsage)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
			if err != nil {
				cmd.PrintErrf("email: %v\n", err)
				return fail(cli.ExitUsage)
			}
			defer jobsCLI.Close()

			info, err := jobsCLI.EmailInvoice(cmd.Context(), accountID, invID, recipient)
			if err != nil {
				cmd.PrintErrf("email: %v\n", err)
				return fail(cli.ExitGenerate)
			}
			cmd.Printf("enqueued %s (queue %s)\n", info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "invoice id")
	cmd.Flags().StringVar(&recipient, "to", "", "recipient override")
	return cmd
}

func newQueueCmd() *cobra.Command {
	var retries int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queue depth and pending retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
			if err != nil {
				cmd.PrintErrf("queue: %v\n", err)
				return fail(cli.ExitUsage)
			}
			defer jobsCLI.Close()

			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				cmd.PrintErrf("queue: %v\n", err)
				return fail(cli.ExitGenerate)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(stats)

			if retries > 0 {
				tasks, err := jobsCLI.ListRetry(cmd.Context(), retries)
				if err != nil {
					cmd.PrintErrf("queue: %v\n", err)
					return fail(cli.ExitGenerate)
				}
				for _, t := range tasks {
					cmd.Printf("%s\t%s\tretried=%d\t%s\n", t.ID, t.Type, t.Retried, t.LastErr)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 0, "also list up to n tasks waiting for retry")
	return cmd
}
