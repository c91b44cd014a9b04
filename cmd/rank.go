package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/dataset"
	"github.com/JakeFAU/prospect-ranker/internal/id/uuid"
	"github.com/JakeFAU/prospect-ranker/internal/logging"
	"github.com/JakeFAU/prospect-ranker/internal/output"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

func newRankCmd() *cobra.Command {
	var input, out string
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Ranks the companies in a CSV by final score",
		Long: `Reads company_name (and optionally website_url) from the input CSV, scores
every company and writes them to the output CSV ordered by final score. The
ranking is also sent to every sink enabled in the configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			rows, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			model, err := appInstance.LoadModel(ctx)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			ranker, err := appInstance.Ranker(model)
			if err != nil {
				return err
			}
			runID, err := uuid.NewUUIDGenerator().NewID()
			if err != nil {
				return err
			}
			logger := logging.WithRun(appInstance.Logger(), runID)
			logger.Info("ranking started", zap.Int("companies", len(rows)), zap.String("input", input))

			ranked, err := ranker.Rank(ctx, dataset.Records(rows))
			if err != nil {
				return fmt.Errorf("rank companies: %w", err)
			}
			sink, err := appInstance.Sinks(ctx, out)
			if err != nil {
				return err
			}
			if err := sink.Write(ctx, runID, ranked); err != nil {
				return err
			}
			logger.Info("ranking finished", zap.Int("ranked", len(ranked)), zap.String("output", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "company CSV to rank")
	cmd.Flags().StringVar(&out, "output", "ranked_companies.csv", "ranked CSV to write")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var input, out string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Writes the model's prediction for every company without fusion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			rows, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			model, err := appInstance.LoadModel(ctx)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			ranker, err := appInstance.Ranker(model)
			if err != nil {
				return err
			}
			preds, err := ranker.Evaluate(ctx, dataset.Records(rows))
			if err != nil {
				return fmt.Errorf("evaluate companies: %w", err)
			}

			err = createOutput(out, func(w io.Writer) error {
				return output.WriteEvaluation(w, preds)
			})
			if err != nil {
				return err
			}

			fields := []zap.Field{zap.Int("companies", len(preds)), zap.String("output", out)}
			if acc, n := pipeline.Accuracy(preds); n > 0 {
				fields = append(fields, zap.Float64("accuracy", acc), zap.Int("labeled", n))
				fmt.Fprintf(cmd.OutOrStdout(), "accuracy: %.3f over %d labeled companies\n", acc, n)
			}
			appInstance.Logger().Info("evaluation finished", fields...)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "company CSV to evaluate")
	cmd.Flags().StringVar(&out, "output", "evaluation_results.csv", "evaluation CSV to write")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
