package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/store"
)

var (
	interactionsType  string
	interactionsSince string
	interactionsUntil string
	interactionsLimit int
)

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recorded model interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("interactions"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter, err := buildInteractionFilter()
		if err != nil {
			return err
		}

		recs, err := st.ListInteractions(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

// buildInteractionFilter translates the flag values into the store's
// time-range and type filter.
func buildInteractionFilter() (store.InteractionFilter, error) {
	filter := store.InteractionFilter{
		Type:  model.InteractionType(interactionsType),
		Limit: interactionsLimit,
	}
	if interactionsSince != "" {
		from, err := time.Parse(time.RFC3339, interactionsSince)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --since %q", interactionsSince)
		}
		filter.From = from
	}
	if interactionsUntil != "" {
		to, err := time.Parse(time.RFC3339, interactionsUntil)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --until %q", interactionsUntil)
		}
		filter.To = to
	}
	return filter, nil
}

func init() {
	interactionsCmd.Flags().StringVar(&interactionsType, "type", "", "filter by interaction type (chat, lead_processing, email_generation)")
	interactionsCmd.Flags().StringVar(&interactionsSince, "since", "", "only interactions at or after this RFC3339 timestamp")
	interactionsCmd.Flags().StringVar(&interactionsUntil, "until", "", "only interactions at or before this RFC3339 timestamp")
	interactionsCmd.Flags().IntVar(&interactionsLimit, "limit", 50, "max rows to return")
	rootCmd.AddCommand(interactionsCmd)
}
