package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/resilience"
)

var retryLimit int

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reprocess failed link attempts from the dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initLinkEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Store.DequeueDLQ(ctx, resilience.DLQFilter{
			ErrorType: "transient",
			Limit:     retryLimit,
		})
		if err != nil {
			return eris.Wrap(err, "dequeue dlq")
		}
		if len(entries) == 0 {
			zap.L().Info("no dlq entries due for retry")
			return nil
		}

		retryCfg := resilience.DefaultRetryConfig()

		var recovered, requeued int
		for _, entry := range entries {
			log := zap.L().With(
				zap.String("lead_id", entry.LeadID),
				zap.Int("retry_count", entry.RetryCount),
			)

			lead, err := env.Store.GetLead(ctx, entry.LeadID)
			if err != nil {
				return eris.Wrapf(err, "get lead %s", entry.LeadID)
			}
			if lead == nil || lead.Linked() {
				// Lead vanished or was linked through another path.
				if err := env.Store.RemoveDLQ(ctx, entry.ID); err != nil {
					return eris.Wrap(err, "remove stale dlq entry")
				}
				continue
			}

			res, linkErr := env.Linker.Link(ctx, *lead)
			if linkErr != nil {
				requeued++
				log.Warn("retry failed", zap.Error(linkErr))
				next := time.Now().UTC().Add(retryCfg.Backoff(entry.RetryCount + 1))
				if err := env.Store.IncrementDLQRetry(ctx, entry.ID, next, linkErr.Error()); err != nil {
					return eris.Wrap(err, "increment dlq retry")
				}
				continue
			}

			recovered++
			if res.Matched {
				log.Info("lead linked on retry",
					zap.String("conversation_id", res.ConversationID),
					zap.Int("score", res.Score),
				)
			} else {
				log.Info("retry found no match")
			}
			if err := env.Store.RemoveDLQ(ctx, entry.ID); err != nil {
				return eris.Wrap(err, "remove dlq entry")
			}
		}

		zap.L().Info("retry pass complete",
			zap.Int("recovered", recovered),
			zap.Int("requeued", requeued),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().IntVar(&retryLimit, "limit", 50, "max number of dlq entries to retry")
	rootCmd.AddCommand(retryCmd)
}
