package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/spf13/cobra"
)

var proposeCmd = &cobra.Command{
	Use:   "propose [app]",
	Short: "Show the cluster and proposed directives of an application without synthesizing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := newOptimizer()
		if err != nil {
			return err
		}
		an, dirs, err := opt.Propose(context.Background(), args[0], paramsFromFlags(cmd))
		if err != nil {
			return err
		}

		c := an.Predicted()
		fmt.Printf("Application: %s\n", args[0])
		fmt.Printf("Cluster: %d (%d donor(s): %v)\n", c.ID, len(c.Members), c.Members)
		fmt.Printf("Pareto designs pooled: %d\n", len(c.Records))

		fmt.Println("\nProposal:")
		active := c.Proposal.Active()
		if len(active) == 0 {
			fmt.Println("  (no directives)")
		}
		for _, ap := range active {
			fmt.Printf("  %-16s %s\n", ap, c.Proposal.Get(ap))
		}

		fmt.Println("\nDirectives:")
		labels := make([]string, 0, len(dirs))
		for l := range dirs {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		if len(labels) == 0 {
			fmt.Println("  (none)")
		}
		for _, l := range labels {
			fmt.Printf("  %-5s %s\n", l, dirs[l])
		}

		showAll, _ := cmd.Flags().GetBool("all")
		if showAll {
			fmt.Println("\nAll clusters:")
			for _, cl := range an.Clusters {
				fmt.Printf("  %d  donors=%-3d designs=%-4d directives=%d\n",
					cl.ID, len(cl.Members), len(cl.Records), len(cl.Proposal.Active()))
			}
			fmt.Println("\nCluster assignment:")
			profiles := append(append([]hls.Profile(nil), an.Donors...), an.Target)
			for _, p := range profiles {
				fmt.Printf("  %-24s %d\n", p.Name, p.Cluster)
			}
		}
		return nil
	},
}

func init() {
	addAnalysisFlags(proposeCmd)
	proposeCmd.Flags().Bool("all", false, "Also list every cluster and every application's assignment")
}
