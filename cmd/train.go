package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/clock/system"
	"github.com/JakeFAU/prospect-ranker/internal/dataset"
)

func newTrainCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fits the relevance model from a training CSV",
		Long: `Cross-validates a TF-IDF logistic regression on the training CSV, prints
the report, then fits on every row and saves the artifact to the configured
model path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			model, report, err := classifier.Train(dataset.Samples(rows), appInstance.Config().TrainOptions())
			if err != nil {
				return fmt.Errorf("train model: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())

			path := appInstance.Config().Model.Path
			uri, err := classifier.Save(cmd.Context(), appInstance.BlobStore(), path, model, system.New().Now())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("model saved",
				zap.String("uri", uri),
				zap.Int("samples", report.Samples),
				zap.Float64("mean_accuracy", report.MeanAccuracy))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "training_data.csv", "training CSV")
	return cmd
}
