package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tether-io/tether-go/pkg/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
				version.Product, version.Current, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
