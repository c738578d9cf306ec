package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/lang"
)

// cliConfig carries the global flags shared by every subcommand.
type cliConfig struct {
	language    string
	colorMode   string
	strict      bool
	fuel        int
	langsConfig string

	registry *lang.Registry
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:           "plotnik",
		Short:         "Compile and run tree-sitter queries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfg.language, "lang", "l", "", "Target language (inferred from file extensions if omitted)")
	flags.StringVar(&cfg.colorMode, "color", "auto", "Color output: auto, always, never")
	flags.BoolVar(&cfg.strict, "strict", false, "Treat warnings as errors")
	flags.IntVar(&cfg.fuel, "fuel", 0, "Execution fuel (instruction budget, 0 = default)")
	flags.StringVar(&cfg.langsConfig, "langs-config", "", "Extra language registry config (YAML)")

	root.AddCommand(
		newCheckCmd(cfg),
		newExecCmd(cfg),
		newDumpCmd(cfg),
		newTypesCmd(cfg),
		newTraceCmd(cfg),
		newLangsCmd(cfg),
	)
	return root
}

// setup loads .env defaults and builds the language registry.
func (c *cliConfig) setup() error {
	// A missing .env is fine; explicit flags win over the environment.
	_ = godotenv.Load()
	if c.language == "" {
		c.language = os.Getenv("PLOTNIK_LANG")
	}
	if c.fuel == 0 {
		if v := os.Getenv("PLOTNIK_FUEL"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("PLOTNIK_FUEL: %w", err)
			}
			c.fuel = n
		}
	}

	c.registry = lang.DefaultRegistry()
	if c.langsConfig != "" {
		rc, err := lang.LoadConfig(c.langsConfig)
		if err != nil {
			return err
		}
		if err := c.registry.Apply(rc); err != nil {
			return err
		}
	}
	return nil
}

// renderOptions maps the --color flag.
func (c *cliConfig) renderOptions() core.RenderOptions {
	mode := core.ColorAuto
	switch c.colorMode {
	case "always":
		mode = core.ColorAlways
	case "never":
		mode = core.ColorNever
	}
	return core.RenderOptions{Color: mode}
}

// grammarFor picks a grammar from --lang or a target file's extension.
func (c *cliConfig) grammarFor(targetFile string) (*lang.Grammar, error) {
	if c.language != "" {
		g, ok := c.registry.Get(c.language)
		if !ok {
			return nil, fmt.Errorf("unknown language %q (known: %v)", c.language, c.registry.Languages())
		}
		return g, nil
	}
	if targetFile != "" {
		if g, ok := c.registry.ForExtension(filepath.Ext(targetFile)); ok {
			return g, nil
		}
		return nil, fmt.Errorf("cannot infer language from %q; pass --lang", targetFile)
	}
	return nil, fmt.Errorf("no language given; pass --lang")
}

func newLangsCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "langs",
		Short: "List registered languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range cfg.registry.Languages() {
				g, _ := cfg.registry.Get(name)
				compiled := "static"
				if g.Language() != nil {
					compiled = "compiled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-9s %v\n", name, compiled, g.Extensions())
			}
			return nil
		},
	}
}
