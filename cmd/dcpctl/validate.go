package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"avaneesh/dcp-go/pkg/description"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <slave-description.yaml>...",
		Short: "Validate slave description files",
		Long: `Validate one or more slave description files without starting a slave.

Examples:
  dcpctl validate plant.yaml
  dcpctl validate plant.yaml controller.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
}

func runValidate(cmd *cobra.Command, paths []string) error {
	failed := 0
	for _, path := range paths {
		desc, err := description.Load(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s %q (%s), %d variable(s), op modes %v\n",
			path, desc.Name, desc.SlaveUUID(), len(desc.Variables), desc.OpModes)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d description(s) invalid", failed, len(paths))
	}
	return nil
}
