package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voicebridge/leadlink/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml with every knob set to its default",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"

		if !configInitForce {
			if _, err := os.Stat(path); err == nil {
				return eris.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		data, err := yaml.Marshal(defaultsTree())
		if err != nil {
			return eris.Wrap(err, "marshal defaults")
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrap(err, "write config file")
		}

		fmt.Fprintf(os.Stdout, "wrote %s\n", path)
		return nil
	},
}

// defaultsTree nests the flat viper default keys into the YAML structure
// the config file uses.
func defaultsTree() map[string]any {
	tree := map[string]any{}
	for key, val := range config.Defaults() {
		parts := strings.SplitN(key, ".", 2)
		section, ok := tree[parts[0]].(map[string]any)
		if !ok {
			section = map[string]any{}
			tree[parts[0]] = section
		}
		section[parts[1]] = val
	}
	return tree
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
