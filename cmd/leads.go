package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/normalize"
	"github.com/voicebridge/leadlink/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage stored leads",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		filter := store.LeadFilter{}
		if linked, _ := cmd.Flags().GetBool("linked"); linked {
			v := true
			filter.Linked = &v
		}
		if unlinked, _ := cmd.Flags().GetBool("unlinked"); unlinked {
			v := false
			filter.Linked = &v
		}
		source, _ := cmd.Flags().GetString("source")
		filter.Source = model.LeadSource(source)
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		filter.Offset, _ = cmd.Flags().GetInt("offset")

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads show --

var leadsShowCmd = &cobra.Command{
	Use:   "show <lead-id>",
	Short: "Show one lead as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		lead, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "leads show")
		}
		if lead == nil {
			return eris.Errorf("lead not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

// -- leads add --

var leadsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a lead manually",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")
		if name == "" && phone == "" {
			return eris.New("at least one of --name or --phone is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		lead, err := st.CreateLead(ctx, name, normalize.Phone(phone), model.LeadSourceManual)
		if err != nil {
			return eris.Wrap(err, "leads add")
		}

		fmt.Fprintln(os.Stdout, lead.ID)
		return nil
	},
}

// -- leads import --

var leadsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-import leads from a CSV file (columns: name, phone, optional source)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leads, err := readLeadsCSV(args[0])
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			return eris.New("no leads found in file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.BulkImportLeads(ctx, leads)
		if err != nil {
			return eris.Wrap(err, "leads import")
		}

		fmt.Fprintf(os.Stdout, "imported %d leads\n", n)
		return nil
	},
}

// readLeadsCSV parses a lead CSV. A header row is detected by a literal
// "name" in the first column and skipped.
func readLeadsCSV(path string) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}

	var leads []model.Lead
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		if len(rec) < 2 {
			return nil, eris.Errorf("%s: row %d has %d columns, want at least 2", path, i+1, len(rec))
		}

		lead := model.Lead{
			ContactName:  strings.TrimSpace(rec[0]),
			ContactPhone: normalize.Phone(rec[1]),
			Source:       model.LeadSourceManual,
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			source := model.LeadSource(strings.TrimSpace(rec[2]))
			switch source {
			case model.LeadSourceWebhook, model.LeadSourceWidget, model.LeadSourceManual:
				lead.Source = source
			default:
				return nil, eris.Errorf("%s: row %d has unknown source %q", path, i+1, rec[2])
			}
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func formatLeadsList(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tSOURCE\tCONVERSATION\tCREATED")
	for _, l := range leads {
		conv := l.ConversationID
		if conv == "" {
			conv = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.ContactName, l.ContactPhone, l.Source, conv,
			l.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	leadsListCmd.Flags().Bool("linked", false, "only leads already linked to a conversation")
	leadsListCmd.Flags().Bool("unlinked", false, "only leads without a conversation")
	leadsListCmd.Flags().String("source", "", "filter by source (webhook, widget, manual)")
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")
	leadsListCmd.Flags().Int("offset", 0, "number of leads to skip")

	leadsAddCmd.Flags().String("name", "", "contact name")
	leadsAddCmd.Flags().String("phone", "", "contact phone")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
	leadsCmd.AddCommand(leadsAddCmd)
	leadsCmd.AddCommand(leadsImportCmd)
	rootCmd.AddCommand(leadsCmd)
}
