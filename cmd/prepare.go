package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/dataset"
)

func newPrepareCmd() *cobra.Command {
	var input, out string
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Crawls labeled companies and writes the training CSV",
		Long: `Reads company_name, label_relevance and website_url from the input CSV,
crawls every labeled company and writes the rows that yielded text to the
training CSV consumed by the train command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			preparer, err := appInstance.Preparer()
			if err != nil {
				return err
			}
			training, stats, err := preparer.Prepare(cmd.Context(), dataset.Records(rows))
			if err != nil {
				return fmt.Errorf("prepare training data: %w", err)
			}

			err = createOutput(out, func(w io.Writer) error {
				return dataset.WriteTraining(w, training)
			})
			if err != nil {
				return err
			}

			appInstance.Logger().Info("training data written",
				zap.String("output", out),
				zap.Int("input", stats.Input),
				zap.Int("kept", stats.Kept),
				zap.Int("no_label", stats.NoLabel),
				zap.Int("no_website", stats.NoWebsite),
				zap.Int("no_text", stats.NoText))
			fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d companies\n", stats.Kept, stats.Input)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "labeled company CSV")
	cmd.Flags().StringVar(&out, "output", "training_data.csv", "training CSV to write")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
