package cli

import (
	"fmt"
	"path/filepath"

	"github.com/sbenjam1n/hlsopt/internal/source"
	"github.com/spf13/cobra"
)

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Directive insertion markers of an application",
}

// loadMarkers reads an application and scans its kernel for markers.
func loadMarkers(app string) (*source.Application, []source.Marker, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, nil, err
	}
	a, err := source.LoadApplication(cfg.Applications, app, catalog)
	if err != nil {
		return nil, nil, err
	}
	markers, err := source.ScanMarkers(filepath.Join(a.Dir, a.Source))
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", a.Source, err)
	}
	return a, markers, nil
}

var markersCheckCmd = &cobra.Command{
	Use:   "check [app]",
	Short: "Compare the mapping file with the markers in the kernel source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, markers, err := loadMarkers(args[0])
		if err != nil {
			return err
		}
		warnings := source.CheckSites(a.Sites, markers)
		fmt.Printf("%s: %d site(s), %d marker(s) in %s\n", a.Name, len(a.Sites), len(markers), a.Source)
		if len(warnings) == 0 {
			fmt.Println("All markers accounted for.")
			return nil
		}
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  ⚠ %s\n", w)
		}
		return fmt.Errorf("%d marker mismatch(es)", len(warnings))
	},
}

var markersShowCmd = &cobra.Command{
	Use:   "show [app]",
	Short: "Show the action points of an application and where their markers are",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, markers, err := loadMarkers(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (top %s, %s)\n", a.Name, a.Top, a.Source)
		fmt.Print(source.FormatSites(a.Sites, markers))
		return nil
	},
}

func init() {
	markersCmd.AddCommand(markersCheckCmd)
	markersCmd.AddCommand(markersShowCmd)
}
