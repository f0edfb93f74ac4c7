package cli

import (
	"fmt"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Action-point catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the action points in catalog order",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog()
		if err != nil {
			return err
		}
		for _, ap := range c.Points() {
			fmt.Printf("  %3d  %-16s %s\n", ap.Ordinal, ap.Name, ap.Kind)
		}
		fmt.Printf("%d action point(s)\n", c.Len())
		return nil
	},
}

var catalogExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the active catalog as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog()
		if err != nil {
			return err
		}
		if err := hls.WriteCatalog(args[0], c); err != nil {
			return err
		}
		fmt.Printf("Catalog written to %s\n", args[0])
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogExportCmd)
}
