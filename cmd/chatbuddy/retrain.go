package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Train the model from the intents and save it",
	Long: `Trains a fresh model from intents_dir. SVM models are written to
model_path so the next serve starts without training.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		gen, err := a.coordinator.Retrain(cmd.Context(), true)
		if err != nil {
			return fmt.Errorf("retrain failed: %w", err)
		}

		logger.Info("✅ model trained", zap.Uint64("generation", gen), zap.String("model", cfg.ModelType))
		fmt.Fprintf(cmd.OutOrStdout(), "Model %s trained on %d intents\n", cfg.ModelType, len(a.catalogs.Get().Tags()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}
