package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/model"
)

var (
	linkForce  bool
	linkDryRun bool
)

var linkCmd = &cobra.Command{
	Use:   "link <lead-id>",
	Short: "Match one lead against recent conversations and persist the link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initLinkEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}
		if lead == nil {
			return eris.Errorf("lead not found: %s", args[0])
		}
		if lead.Linked() && !linkForce {
			return eris.Errorf("lead %s is already linked to conversation %s (use --force to re-link)", lead.ID, lead.ConversationID)
		}

		var res *model.LinkResult
		if linkDryRun {
			res, err = env.Linker.FindMatch(ctx, *lead)
		} else {
			res, err = env.Linker.Link(ctx, *lead)
		}
		if err != nil {
			return eris.Wrap(err, "link lead")
		}

		if !res.Matched {
			zap.L().Warn("no matching conversation found",
				zap.String("lead_id", lead.ID),
				zap.Int("examined", res.SearchCriteria.Examined),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	linkCmd.Flags().BoolVar(&linkForce, "force", false, "re-link even if the lead already has a conversation")
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "report the match without writing anything")
	rootCmd.AddCommand(linkCmd)
}
