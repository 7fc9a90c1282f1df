package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// STORE MAINTENANCE
// =============================================================================

// withStore opens the store for the duration of fn.
func withStore(cmd *cobra.Command, global *globalOptions, fn func(*sqlite.Store, *zap.Logger) error) error {
	logger, err := global.logger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := global.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store, logger)
}

func readFileFlag(cmd *cobra.Command) (string, []byte, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return "", nil, fmt.Errorf("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return path, data, nil
}

// ─── catalog ────────────────────────────────────────────────────────────────

func newCatalogCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage component catalog revisions",
	}

	publish := &cobra.Command{
		Use:   "publish",
		Short: "Publish a new catalog revision from a JSON file",
		Long: `Publish the components in a JSON array as a new immutable catalog
revision. Existing revisions are never changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, data, err := readFileFlag(cmd)
			if err != nil {
				return err
			}
			defs, err := decodeComponents(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return withStore(cmd, global, func(store *sqlite.Store, logger *zap.Logger) error {
				rev, err := store.PublishCatalog(cmd.Context(), defs)
				if err != nil {
					return err
				}
				logger.Info("catalog revision published",
					zap.Int64("revision", rev),
					zap.Int("components", len(defs)))
				fmt.Fprintf(cmd.OutOrStdout(), "published catalog revision %d (%d components)\n", rev, len(defs))
				return nil
			})
		},
	}
	publish.Flags().StringP("file", "f", "", "Component list JSON file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, global, func(store *sqlite.Store, _ *zap.Logger) error {
				revisions, err := store.ListRevisions(cmd.Context())
				if err != nil {
					return err
				}
				out := make([]RevisionDTO, 0, len(revisions))
				for _, r := range revisions {
					out = append(out, newRevisionDTO(r))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.AddCommand(publish, list)
	return cmd
}

// ─── ruleset ────────────────────────────────────────────────────────────────

func newRuleSetCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruleset",
		Short: "Manage calculation rule sets",
	}

	save := &cobra.Command{
		Use:   "save",
		Short: "Save a rule set from a JSON file",
		Long:  `Save a rule set. Saving an existing id replaces it and increments its version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, data, err := readFileFlag(cmd)
			if err != nil {
				return err
			}
			rs, err := factory.ParseRuleSet(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return withStore(cmd, global, func(store *sqlite.Store, logger *zap.Logger) error {
				version, err := store.SaveRuleSet(cmd.Context(), rs)
				if err != nil {
					return err
				}
				logger.Info("rule set saved", zap.String("rule_set", rs.ID), zap.Int("version", version))
				fmt.Fprintf(cmd.OutOrStdout(), "saved rule set %s version %d\n", rs.ID, version)
				return nil
			})
		},
	}
	save.Flags().StringP("file", "f", "", "Rule set JSON file")

	cmd.AddCommand(save)
	return cmd
}

// ─── engine ─────────────────────────────────────────────────────────────────

func newEngineCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Manage stored engine descriptors",
	}

	save := &cobra.Command{
		Use:   "save",
		Short: "Validate and save an engine descriptor",
		Long: `Validate an engine descriptor (.json, .yaml, .yml or .toml) and store it
under --id. Saving an existing id replaces it and increments its version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			ej, err := readDescriptor(path)
			if err != nil {
				return err
			}
			return withStore(cmd, global, func(store *sqlite.Store, logger *zap.Logger) error {
				version, err := store.SaveEngineDescriptor(cmd.Context(), id, ej)
				if err != nil {
					return err
				}
				logger.Info("engine descriptor saved", zap.String("engine", id), zap.Int("version", version))
				fmt.Fprintf(cmd.OutOrStdout(), "saved engine %s version %d\n", id, version)
				return nil
			})
		},
	}
	save.Flags().String("id", "", "Descriptor id")
	save.Flags().StringP("file", "f", "", "Engine descriptor file")

	cmd.AddCommand(save)
	return cmd
}
