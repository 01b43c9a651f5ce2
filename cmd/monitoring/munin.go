package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/munin"
	"github.com/user/monitoring/internal/util"
)

var muninCmd = &cobra.Command{
	Use:   "munin [domain [host [category]]]",
	Short: "Browse the Munin datafile",
	Long: `Without arguments list the Munin domains; with a domain list its hosts,
with a host its categories and with a category its values.

Examples:
  monitoring munin
  monitoring munin example.com web1.example.com cpu`,
	Args: cobra.MaximumNArgs(3),
	RunE: runMunin,
}

func runMunin(cmd *cobra.Command, args []string) error {
	cache := munin.NewCache(cfg.Munin.DatafilePath(), munin.WithLogger(util.GetLogger()))
	stats, err := cache.Get(cmd.Context())
	if err != nil {
		return err
	}

	switch len(args) {
	case 0:
		fmt.Println(titleStyle.Render("Munin " + stats.Version))
		for _, d := range stats.DomainNames() {
			fmt.Println("  " + d)
		}
	case 1:
		for _, h := range stats.Hosts(args[0]) {
			fmt.Println(h)
		}
	case 2:
		for _, c := range stats.Categories(args[0], args[1]) {
			fmt.Println(c)
		}
	default:
		for _, d := range stats.Details(args[0], args[1], args[2]) {
			for label, value := range d {
				printField(label, value)
			}
		}
	}
	return nil
}
