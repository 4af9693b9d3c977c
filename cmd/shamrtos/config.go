package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shamrtos"
	"shamrtos/internal/scenario"
)

var configCmd = &cobra.Command{
	Use:   "config [SCENARIO.yaml]",
	Short: "Print the effective kernel config",
	Long:  "Print the kernel config as YAML: the defaults, or the kernel section of a scenario with defaults filled in.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := shamrtos.DefaultConfig()
		if len(args) == 1 {
			f, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			cfg = f.Kernel
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}
