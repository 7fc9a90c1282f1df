/*
main.go - Payroll command-line entry point

PURPOSE:
  Runs payroll batches and maintains the SQLite store the batches read
  from: component catalog revisions, rule sets and engine descriptors.

COMMANDS:
  payroll calculate        Calculate a batch, print results as JSON
  payroll catalog publish  Publish a new catalog revision
  payroll catalog list     List catalog revisions
  payroll ruleset save     Save (or version) a rule set
  payroll engine save      Save (or version) an engine descriptor

GLOBAL FLAGS:
  --db         SQLite database path (default: payroll.db)
               Use ":memory:" for an in-memory database
  --log-level  debug, info, warn or error (default: info)

EXIT STATUS:
  0 on success, 2 when any calculated employee FAILED, 1 otherwise.

EXAMPLES:
  # Calculate with a descriptor file, no store rule sets
  ./payroll calculate --engine=engine.yaml --input=employees.json

  # Store a descriptor and rule set, then calculate against them
  ./payroll --db=./data/payroll.db engine save --id=monthly -f engine.toml
  ./payroll --db=./data/payroll.db ruleset save -f sales.json
  ./payroll --db=./data/payroll.db calculate --engine-id=monthly -i employees.json

SEE ALSO:
  - calculate.go: Batch calculation
  - admin.go: Store maintenance commands
  - dto.go: Input and output shapes
  - factory/engine.go: Descriptor formats
*/
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/payroll-engine/store/sqlite"
)

// errBatchFailed reports that at least one employee calculation failed.
var errBatchFailed = errors.New("one or more calculations failed")

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case errors.Is(err, errBatchFailed):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "payroll:", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent root flags.
type globalOptions struct {
	dbPath   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "payroll",
		Short: "Calculate payroll batches and manage payroll configuration",
		Long: `Calculate payroll batches from engine descriptors and maintain the
SQLite store holding component catalogs, rule sets and engine descriptors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "payroll.db", "SQLite database path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newCalculateCmd(opts))
	root.AddCommand(newCatalogCmd(opts))
	root.AddCommand(newRuleSetCmd(opts))
	root.AddCommand(newEngineCmd(opts))
	return root
}

// logger builds the JSON logger writing to the command's stderr.
func (o *globalOptions) logger(cmd *cobra.Command) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(o.logLevel)))); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return newLogger(lvl, cmd.ErrOrStderr()), nil
}

func newLogger(lvl zap.AtomicLevel, w io.Writer) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core)
}

// openStore opens the store named by --db.
func (o *globalOptions) openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}
