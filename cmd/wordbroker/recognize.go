package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/wordbroker/internal/recognition"
	"github.com/at-ishikawa/wordbroker/internal/wiring"
)

func newRecognizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recognize <image file>",
		Short: "Extract the text of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readImage(args[0])
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), func(container *wiring.Container) error {
				result, err := container.Recognition.Recognize(cmd.Context(), image)
				if err != nil {
					return fmt.Errorf("Recognize() > %w", err)
				}

				out := cmd.OutOrStdout()
				if _, err := fmt.Fprintln(out, result.Text); err != nil {
					return fmt.Errorf("fmt.Fprintln() > %w", err)
				}
				if result.Backup {
					if _, err := color.New(color.FgYellow).Fprintln(out, "(recognized with the backup key)"); err != nil {
						return fmt.Errorf("color.Fprintln() > %w", err)
					}
				}
				return nil
			})
		},
	}
}

func readImage(path string) (recognition.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recognition.Image{}, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return recognition.Image{}, fmt.Errorf("%s is not an image: %s", path, mtype.String())
	}
	return recognition.Image{Data: data, MIMEType: mtype.String()}, nil
}
