package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
	"github.com/voicebridge/leadlink/internal/store"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Link all unlinked leads against recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initLinkEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		unlinked := false
		leads, err := env.Store.ListLeads(ctx, store.LeadFilter{Linked: &unlinked, Limit: batchLimit})
		if err != nil {
			return eris.Wrap(err, "list unlinked leads")
		}

		return processBatch(ctx, env, leads, cfg.Batch.MaxConcurrentLeads)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of leads to process")
	rootCmd.AddCommand(batchCmd)
}

// processBatch runs link attempts concurrently. Individual failures do not
// abort the batch; transient ones are retried in place and the rest land in
// the dead letter queue.
func processBatch(ctx context.Context, env *linkEnv, leads []model.Lead, concurrency int) error {
	if len(leads) == 0 {
		zap.L().Info("no unlinked leads found")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	zap.L().Info("processing batch",
		zap.Int("leads", len(leads)),
		zap.Int("concurrency", concurrency),
	)

	retryCfg := resilience.DefaultRetryConfig()

	var matched, unmatched, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, lead := range leads {
		g.Go(func() error {
			log := zap.L().With(zap.String("lead_id", lead.ID))

			var res *model.LinkResult
			cfgWithLog := retryCfg
			cfgWithLog.OnRetry = resilience.RetryLogger("voiceapi", "link")

			err := resilience.Do(gctx, cfgWithLog, func(ctx context.Context) error {
				var linkErr error
				res, linkErr = env.Linker.Link(ctx, lead)
				return linkErr
			})
			if err != nil {
				failed.Add(1)
				log.Error("link failed", zap.Error(err))
				entry := resilience.NewDLQEntry(lead.ID, err, cfg.Batch.MaxDLQRetries)
				if dlqErr := env.Store.EnqueueDLQ(gctx, entry); dlqErr != nil {
					log.Warn("failed to enqueue dlq entry", zap.Error(dlqErr))
				}
				return nil // don't abort batch on individual failure
			}

			if res.Matched {
				matched.Add(1)
				log.Info("lead linked",
					zap.String("conversation_id", res.ConversationID),
					zap.Int("score", res.Score),
				)
			} else {
				unmatched.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("matched", matched.Load()),
		zap.Int64("unmatched", unmatched.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
