package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	plotnik "github.com/oxhq/plotnik"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/vm"
)

func newExecCmd(cfg *cliConfig) *cobra.Command {
	var entrypoint string
	cmd := &cobra.Command{
		Use:   "exec <query> <file>",
		Short: "Run a query against a source file and print the result as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, _, err := runQuery(cfg, args[0], args[1], entrypoint, nil)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&entrypoint, "entry", "e", "", "Entrypoint name (default: the unnamed definition)")
	return cmd
}

func newTraceCmd(cfg *cliConfig) *cobra.Command {
	var entrypoint, verbosity string
	cmd := &cobra.Command{
		Use:   "trace <query> <file>",
		Short: "Run a query with the step tracer enabled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := vm.VerbosityStandard
			switch verbosity {
			case "terse":
				level = vm.VerbosityTerse
			case "verbose":
				level = vm.VerbosityVerbose
			case "", "standard":
			default:
				return fmt.Errorf("unknown verbosity %q (terse|standard|verbose)", verbosity)
			}
			tracer := &vm.PrintTracer{W: cmd.ErrOrStderr(), Verbosity: level}
			value, _, err := runQuery(cfg, args[0], args[1], entrypoint, tracer)
			fmt.Fprintf(cmd.ErrOrStderr(), "-- %d steps\n", tracer.Steps())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), vm.FormatValue(value))
			return nil
		},
	}
	cmd.Flags().StringVarP(&entrypoint, "entry", "e", "", "Entrypoint name")
	cmd.Flags().StringVarP(&verbosity, "verbosity", "v", "standard", "Trace verbosity: terse, standard, verbose")
	return cmd
}

// runQuery is the shared compile-and-execute path of exec and trace.
func runQuery(cfg *cliConfig, queryArg, file, entrypoint string, tracer vm.Tracer) (vm.Value, *plotnik.Query, error) {
	inputs, err := loadQueries([]string{queryArg})
	if err != nil {
		return nil, nil, err
	}
	grammar, err := cfg.grammarFor(file)
	if err != nil {
		return nil, nil, err
	}

	q, err := plotnik.CompileSources(inputs, grammar, plotnik.Options{Strict: cfg.strict})
	var cerr *plotnik.CompileError
	if errors.As(err, &cerr) {
		fmt.Fprint(os.Stderr, cerr.Render(cfg.renderOptions()))
		return nil, nil, fmt.Errorf("%d problems", cerr.Diags.Len())
	}
	if err != nil {
		return nil, nil, err
	}

	source, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source: %w", err)
	}

	root, err := vm.Parse(grammar.Language(), source)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	limits := vm.Limits{Fuel: cfg.fuel}
	var value vm.Value
	if tracer != nil {
		value, err = q.ExecTraced(root, entrypoint, limits, tracer)
	} else {
		value, err = q.Exec(root, entrypoint, limits)
	}
	if err != nil {
		return nil, nil, err
	}
	return value, q, nil
}

// formatModuleType renders a loaded module's type for the CLI.
func formatModuleType(mod *bytecode.Module, id bytecode.TypeID) string {
	def, err := mod.Type(id)
	if err != nil {
		return fmt.Sprintf("type#%d", id)
	}
	switch def.Kind {
	case bytecode.KindVoid:
		return "Void"
	case bytecode.KindNode:
		return "Node"
	case bytecode.KindString:
		return "String"
	case bytecode.KindOptional:
		return formatModuleType(mod, def.Inner()) + "?"
	case bytecode.KindArrayZeroOrMore:
		return formatModuleType(mod, def.Inner()) + "[]"
	case bytecode.KindArrayOneOrMore:
		return formatModuleType(mod, def.Inner()) + "[+]"
	case bytecode.KindAlias:
		if def.Name != 0 {
			return mod.MustString(def.Name)
		}
		return formatModuleType(mod, def.Inner())
	case bytecode.KindStruct, bytecode.KindEnum:
		members, err := mod.Members(def)
		if err != nil {
			return fmt.Sprintf("type#%d", id)
		}
		parts := make([]string, 0, len(members))
		for _, mem := range members {
			parts = append(parts, fmt.Sprintf("%s: %s", mod.MustString(mem.Name), formatModuleType(mod, mem.Type)))
		}
		if def.Kind == bytecode.KindStruct {
			return "{" + strings.Join(parts, ", ") + "}"
		}
		return "[" + strings.Join(parts, " | ") + "]"
	}
	return fmt.Sprintf("type#%d", id)
}
