package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/career-lab/internal/archive"
	"github.com/cuongbtq/career-lab/internal/generation"
	"github.com/cuongbtq/career-lab/internal/n8n"
	"github.com/cuongbtq/career-lab/shared/database"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var payloadFlag string

	cmd := &cobra.Command{
		Use:   "run <kind>",
		Short: "Submit a generation and wait for its result",
		Long: "Submit a generation and wait for its result.\n" +
			"Kinds: career-sentence, topics, research-methods. Ctrl-C cancels the job.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := generation.ParseKind(args[0])
			if err != nil {
				return err
			}

			payload := map[string]any{}
			if strings.TrimSpace(payloadFlag) != "" {
				if err := json.Unmarshal([]byte(payloadFlag), &payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}
			requestID, ok := payload["requestId"].(string)
			if !ok || requestID == "" {
				requestID = uuid.NewString()
				payload["requestId"] = requestID
			}

			svc, client, err := ctx.generator()
			if err != nil {
				return err
			}

			outcome := svc.Execute(cmd.Context(), kind, payload)
			if outcome.Cancelled() {
				client.NotifyCancel(context.WithoutCancel(cmd.Context()), requestID)
			}

			if err := printOutcome(cmd, ctx, requestID, outcome); err != nil {
				return err
			}
			return outcomeError(outcome)
		},
	}

	cmd.Flags().StringVarP(&payloadFlag, "payload", "p", "", "JSON object sent to the workflow")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Check the status of a submitted job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait <= 0 {
				return fmt.Errorf("--wait must be greater than 0")
			}

			client, err := ctx.n8nClient()
			if err != nil {
				return err
			}

			outcome := client.Poll(cmd.Context(), args[0], n8n.PollOptions{MaxPollingTime: wait})
			if outcome.TimedOut() {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s has not finished after %s\n", args[0], wait)
				return nil
			}

			if err := printOutcome(cmd, ctx, "", outcome); err != nil {
				return err
			}
			return outcomeError(outcome)
		},
	}

	cmd.Flags().DurationVarP(&wait, "wait", "w", 10*time.Second, "How long to wait for the job to finish")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Ask the workflows to abandon a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.n8nClient()
			if err != nil {
				return err
			}

			client.NotifyCancel(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Cancel notification sent for %s\n", args[0])
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var filter archive.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived generation requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if filter.PageSize <= 0 {
				return fmt.Errorf("--limit must be greater than 0")
			}

			db, err := database.NewClient(cfg.Database.ClientConfig(), ctx.log())
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			defer db.Close()

			store := archive.NewStore(db.GetDB(), ctx.log())
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			records, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(records) > filter.PageSize {
				records = records[:filter.PageSize]
			}

			if *ctx.jsonFlag {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No requests found")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.RequestID,
					r.Kind,
					r.Status,
					r.UserID,
					strconv.Itoa(r.RetryCount),
					r.CreatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Request", "Kind", "Status", "User", "Retries", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.UserID, "user", "", "Only requests of this user")
	cmd.Flags().StringVar(&filter.SessionID, "session", "", "Only requests of this session")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only requests of this kind")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only requests in this status")
	cmd.Flags().IntVarP(&filter.PageSize, "limit", "n", 20, "Maximum number of requests to show")
	return cmd
}

// outcomeError turns a failed outcome into the command's exit error
func outcomeError(o n8n.Outcome) error {
	if o.Success {
		return nil
	}
	return fmt.Errorf("generation %s: %s", o.ErrorKind, o.Error)
}
