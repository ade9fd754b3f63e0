package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the project content to stdout or a file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runExport(outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write export to file instead of stdout")

	return cmd
}

func runExport(outputPath string) error {
	logger := buildLogger()
	ctx := context.Background()

	client, err := newClient(logger)
	if err != nil {
		return err
	}

	body, err := client.Export(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	dest := io.Writer(os.Stdout)

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()

		dest = f
	}

	n, err := io.Copy(dest, body)
	if err != nil {
		return err
	}

	logger.Info("export complete", "bytes", n)

	if outputPath != "" {
		statusf("Exported %d bytes to %s\n", n, outputPath)
	}

	return nil
}
