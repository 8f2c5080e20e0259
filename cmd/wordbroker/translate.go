package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/at-ishikawa/wordbroker/internal/wiring"
)

func newTranslateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <word>...",
		Short: "Translate words through the model cascade and the fallback",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(container *wiring.Container) error {
				out := cmd.OutOrStdout()
				red := color.New(color.FgRed)

				var failed int
				for _, word := range args {
					result := container.Translation.Translate(cmd.Context(), word)
					if result.Failed {
						failed++
						if _, err := red.Fprintf(out, "%s\t%s\n", word, result.Translated); err != nil {
							return fmt.Errorf("red.Fprintf() > %w", err)
						}
						continue
					}
					if _, err := fmt.Fprintf(out, "%s\t%s\n", word, result.Translated); err != nil {
						return fmt.Errorf("fmt.Fprintf() > %w", err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d words could not be translated", failed, len(args))
				}
				return nil
			})
		},
	}
}
