package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	plotnik "github.com/oxhq/plotnik"
)

// loadQueries resolves query arguments into compilation inputs. Each
// argument is either inline query text (contains query syntax), `-` for
// stdin, a file path, or a doublestar glob expanding to query files.
func loadQueries(args []string) ([]plotnik.SourceInput, error) {
	var inputs []plotnik.SourceInput
	for _, arg := range args {
		switch {
		case arg == "-":
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			inputs = append(inputs, plotnik.SourceInput{Stdin: true, Content: string(content)})

		case looksInline(arg):
			inputs = append(inputs, plotnik.SourceInput{Content: arg})

		case isGlob(arg):
			matches, err := doublestar.FilepathGlob(arg)
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", arg, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("glob %q matched no files", arg)
			}
			sort.Strings(matches)
			for _, path := range matches {
				in, err := loadFile(path)
				if err != nil {
					return nil, err
				}
				inputs = append(inputs, in)
			}

		default:
			in, err := loadFile(arg)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no query sources given")
	}
	return inputs, nil
}

func loadFile(path string) (plotnik.SourceInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return plotnik.SourceInput{}, fmt.Errorf("reading query: %w", err)
	}
	return plotnik.SourceInput{Path: path, Content: string(content)}, nil
}

// looksInline detects query text passed directly on the command line.
func looksInline(arg string) bool {
	return strings.ContainsAny(arg, "({[@\"")
}

func isGlob(arg string) bool {
	return strings.ContainsAny(arg, "*?[")
}
