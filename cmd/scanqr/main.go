package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scanqr/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:           "scanqr",
		Short:         "Scan QR codes and barcodes from a camera, image files or PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(newScanCommand(), newDecodeCommand(), newEncodeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scanqr:", err)
		os.Exit(1)
	}
}
