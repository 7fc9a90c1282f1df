package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// CALCULATE
// =============================================================================

type calculateOptions struct {
	enginePath string
	engineID   string
	inputPath  string
	metricsOut string
	noRules    bool
}

func newCalculateCmd(global *globalOptions) *cobra.Command {
	opts := &calculateOptions{}
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate a payroll batch",
		Long: `Build the engine from a descriptor file (--engine) or a stored descriptor
(--engine-id), apply the active stored rule sets to every employee, and
print the batch results as JSON.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if (opts.enginePath == "") == (opts.engineID == "") {
				return fmt.Errorf("exactly one of --engine or --engine-id is required")
			}
			if opts.engineID != "" && opts.noRules {
				return fmt.Errorf("--engine-id reads the store and cannot be combined with --no-rules")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalculate(cmd, global, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.enginePath, "engine", "e", "", "Engine descriptor file (.json, .yaml, .yml or .toml)")
	cmd.Flags().StringVar(&opts.engineID, "engine-id", "", "Stored engine descriptor id")
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "-", "Employee input JSON file, - for stdin")
	cmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus text metrics to this file")
	cmd.Flags().BoolVar(&opts.noRules, "no-rules", false, "Do not open the store; apply no rule sets")
	return cmd
}

func runCalculate(cmd *cobra.Command, global *globalOptions, opts *calculateOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := global.logger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var store *sqlite.Store
	if !opts.noRules {
		store, err = global.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
	}

	registry := prometheus.NewRegistry()
	f := factory.NewEngineFactory(logger, metrics.NewRecorder(registry))

	cfg, err := loadEngineConfig(ctx, f, store, opts)
	if err != nil {
		return err
	}
	engine, err := payroll.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	inputs, err := readInputs(opts.inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var ruleSets []payroll.RuleSet
	if store != nil {
		ruleSets, err = store.ListRuleSets(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to load rule sets: %w", err)
		}
	}

	contexts := make([]*payroll.CalculationContext, 0, len(inputs))
	for _, in := range inputs {
		cc, err := in.Context()
		if err != nil {
			return fmt.Errorf("employee %s: %w", in.EmployeeID, err)
		}
		if applied := payroll.ApplyRuleSets(cc, ruleSets); len(applied) > 0 {
			logger.Debug("rule sets applied",
				zap.String("employee_id", cc.EmployeeID),
				zap.Strings("rule_sets", applied))
		}
		contexts = append(contexts, cc)
	}

	batch := engine.CalculateBatch(contexts)
	if err := writeJSON(cmd.OutOrStdout(), newBatchDTO(batch)); err != nil {
		return err
	}

	if opts.metricsOut != "" {
		if err := writeMetrics(opts.metricsOut, registry); err != nil {
			return err
		}
	}

	if len(batch.Failed()) > 0 {
		return errBatchFailed
	}
	return nil
}

func loadEngineConfig(ctx context.Context, f *factory.EngineFactory, store *sqlite.Store, opts *calculateOptions) (payroll.EngineConfig, error) {
	if opts.engineID != "" {
		rec, err := store.GetEngineDescriptor(ctx, opts.engineID)
		if err != nil {
			return payroll.EngineConfig{}, fmt.Errorf("failed to load engine %s: %w", opts.engineID, err)
		}
		if rec == nil {
			return payroll.EngineConfig{}, fmt.Errorf("engine %s not found", opts.engineID)
		}
		return f.FromJSON(rec.Descriptor)
	}

	ej, err := readDescriptor(opts.enginePath)
	if err != nil {
		return payroll.EngineConfig{}, err
	}
	return f.FromJSON(ej)
}

func readDescriptor(path string) (factory.EngineJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return factory.EngineJSON{}, fmt.Errorf("failed to read engine descriptor: %w", err)
	}
	return factory.DecodeFile(path, data)
}

func writeMetrics(path string, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			out.Close()
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	return nil
}
