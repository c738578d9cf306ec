package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	plotnik "github.com/oxhq/plotnik"
	"github.com/oxhq/plotnik/bytecode"
)

func newDumpCmd(cfg *cliConfig) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "dump <query>",
		Short: "Compile a query and print the bytecode module listing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := loadQueries(args)
			if err != nil {
				return err
			}
			grammar, err := cfg.grammarFor("")
			if err != nil {
				return err
			}
			q, err := plotnik.CompileSources(inputs, grammar, plotnik.Options{Strict: cfg.strict})
			var cerr *plotnik.CompileError
			if errors.As(err, &cerr) {
				fmt.Fprint(cmd.ErrOrStderr(), cerr.Render(cfg.renderOptions()))
				return fmt.Errorf("%d problems", cerr.Diags.Len())
			}
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeModule(outPath, q.Bytes()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(q.Bytes()), outPath)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), bytecode.Dump(q.Module()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the raw module to a file instead of listing it")
	return cmd
}
