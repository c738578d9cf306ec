package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	plotnik "github.com/oxhq/plotnik"
)

func newCheckCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "check <query>...",
		Short: "Parse and analyze queries, reporting diagnostics",
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

			_, err = plotnik.CompileSources(inputs, grammar, plotnik.Options{Strict: cfg.strict})
			var cerr *plotnik.CompileError
			switch {
			case errors.As(err, &cerr):
				fmt.Fprint(cmd.ErrOrStderr(), cerr.Render(cfg.renderOptions()))
				return fmt.Errorf("%d problems", cerr.Diags.Len())
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d source(s)\n", len(inputs))
			return nil
		},
	}
}

func newTypesCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "types <query>...",
		Short: "Print the inferred result types of every definition",
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

			mod := q.Module()
			for i := 0; i < mod.EntrypointCount(); i++ {
				ep, err := mod.EntrypointAt(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n",
					mod.MustString(ep.Name), formatModuleType(mod, ep.ResultType))
			}
			return nil
		},
	}
}
