package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tosin2013/dirigent/pkg/directive"
	"github.com/tosin2013/dirigent/pkg/engine"
)

func newLintCommand() *cobra.Command {
	var (
		pattern string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "lint [path]",
		Short: "Validate directive files without executing them",
		Long: `Validate directive files against the wire schema, the structural
rules, and dependency resolution, without running any operation.

Files matching the glob under the given path are checked; JSON and YAML
are both accepted. With --watch, the path is monitored and re-linted on
every change.`,
		Example: `  # Lint directives in the current directory
  dirigent lint

  # Lint a directory of YAML plans
  dirigent lint --glob '**/*.yaml' ./plans

  # Keep linting as files change
  dirigent lint --watch ./plans`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			logger, err := newCLILogger()
			if err != nil {
				return err
			}

			failures, err := lintTree(root, pattern)
			if err != nil {
				return err
			}
			if !watch {
				if failures > 0 {
					return fmt.Errorf("%d directive file(s) failed lint", failures)
				}
				return nil
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(root); err != nil {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			logger.Infof("watching %s for directive changes", root)

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if _, err := lintTree(root, pattern); err != nil {
						logger.WithError(err).Error("lint pass failed")
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.WithError(err).Warn("watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVar(&pattern, "glob", "**/*.{json,yaml,yml}", "glob pattern for directive files")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-lint whenever files change")

	return cmd
}

// lintTree checks every matching file under root and prints one line per
// file. It returns how many files failed.
func lintTree(root, pattern string) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return 0, fmt.Errorf("bad glob %q: %w", pattern, err)
	}

	validator := engine.NewValidator()
	failures := 0
	for _, match := range matches {
		path := filepath.Join(root, match)
		if err := lintFile(validator, path); err != nil {
			failures++
			fmt.Printf("FAIL  %s: %v\n", path, err)
			continue
		}
		fmt.Printf("ok    %s\n", path)
	}
	if len(matches) == 0 {
		fmt.Printf("no files match %q under %s\n", pattern, root)
	}
	return failures, nil
}

func lintFile(validator *engine.Validator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var resp *directive.Response
	if strings.HasSuffix(path, ".json") {
		resp, err = directive.DecodeJSON(data)
	} else {
		resp, err = directive.DecodeYAML(data)
	}
	if err != nil {
		return err
	}

	switch resp.Type {
	case directive.ResponseTypeOrchestration:
		if err := validator.ValidateOrchestration(resp.Orchestration); err != nil {
			return err
		}
		return engine.ResolveDependencies(resp.Orchestration)
	case directive.ResponseTypeStateMachine:
		return validator.ValidateStateMachine(resp.StateMachine)
	default:
		return nil
	}
}
