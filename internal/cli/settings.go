package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
)

func newSettingsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or store thresholds and budgets",
	}
	cmd.AddCommand(newSettingsShowCmd(o), newSettingsSetCmd(o))
	return cmd
}

func newSettingsShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective engine settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Settings.Load(cmd.Context())
			format := o.outputFormat()
			if format == "table" {
				format = "yaml"
			}
			return printOutput(cmd.OutOrStdout(), format, cfg)
		},
	}
}

func newSettingsSetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <thresholds|budgets> <file>",
		Short: "Store a thresholds or budgets document (JSON or YAML)",
		Example: `  costwatch settings set thresholds thresholds.yaml
  costwatch settings set budgets budgets.json`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: settingsKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readSettingsDocument(args[1])
			if err != nil {
				return err
			}

			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Settings.Save(cmd.Context(), args[0], doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s settings\n", args[0])
			return nil
		},
	}
}

// readSettingsDocument returns the file as JSON. YAML files are converted.
func readSettingsDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return json.Marshal(doc)
	default:
		return raw, nil
	}
}

// settingsKeys lists the documents settings set accepts
var settingsKeys = []string{settings.KeyThresholds, settings.KeyBudgets}
