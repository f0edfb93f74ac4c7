package cli

import (
	"context"
	"fmt"

	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [app]",
	Short: "Check an application and the knowledge base before optimizing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		v := validator.New(catalog, kb.New(kb.Layout{Root: cfg.KnowledgeBase}, catalog, logger), cfg.Applications)
		result, err := v.Validate(context.Background(), args[0])
		if err != nil {
			return err
		}

		status := "PASSED"
		if !result.Passed {
			status = "FAILED"
		}
		fmt.Printf("Tier %d %s: %s\n", result.Tier, status, result.Message)
		for _, d := range result.Details {
			mark := "✓"
			if !d.Passed {
				mark = "✗"
			}
			fmt.Printf("  %s %s", mark, d.Check)
			if d.Got != "" {
				fmt.Printf(": %s", d.Got)
			}
			fmt.Println()
			if !d.Passed {
				if d.Expected != "" {
					fmt.Printf("      expected: %s\n", d.Expected)
				}
				fmt.Printf("      fix: %s\n", d.Fix)
			}
		}
		if !result.Passed {
			return fmt.Errorf("validation failed with code %d", result.Code)
		}
		return nil
	},
}
