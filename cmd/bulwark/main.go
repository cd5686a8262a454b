package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "bulwark",
		Short:   "Client-side resilience layer for costly remote inference calls",
		Version: version,
	}

	root.AddCommand(
		newDemoCmd(),
		newCacheCmd(),
		newQuotaCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
