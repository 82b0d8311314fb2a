package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	envflags "github.com/goliatone/go-envflags"
	"github.com/goliatone/go-envflags/pkg/document"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "envflags",
		Short:         "Select environments and reconcile their feature symbols",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.document, "file", "f", defaultDocument, "environment document")
	flags.StringVar(&opts.symbols, "symbols", "", "define file to reconcile (default: document symbols_file or defines.txt)")
	flags.StringVar(&opts.stateDir, "state", "", "state directory (default: document state_dir or .envflags)")
	flags.StringArrayVar(&opts.sets, "set", nil, "override a value for every environment, key=value")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug diagnostics")
	flags.BoolVar(&opts.events, "events", false, "print activity events")

	root.AddCommand(
		newListCommand(opts),
		newSelectCommand(opts),
		newApplyCommand(opts),
		newWatchCommand(opts),
		newExplainCommand(opts),
	)
	return root
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments, marking the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			active := s.orch.GetActiveIndex()
			for i, name := range s.orch.ListVariantNames() {
				marker := " "
				if i == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", marker, i, name)
			}
			return nil
		},
	}
}

func newSelectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <name|index>",
		Short: "Select an environment and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			index, err := resolveIndex(s.orch.Selector(), args[0])
			if err != nil {
				return err
			}
			_, result, err := s.orch.SelectAndApply(cmd.Context(), index)
			printResult(cmd.OutOrStdout(), result)
			if err != nil {
				return err
			}
			return s.saveSelection(cmd.Context(), result)
		},
	}
}

func newApplyCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			result, err := s.orch.ApplyActive(cmd.Context())
			printResult(cmd.OutOrStdout(), result)
			return err
		},
	}
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply the active environment and re-apply whenever the document changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apply := func() error {
				s, err := openSession(cmd.Context(), *opts, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				result, err := s.orch.ApplyActive(cmd.Context())
				printResult(cmd.OutOrStdout(), result)
				return err
			}
			if err := apply(); err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), opts.verbose)
			return watchDocument(cmd.Context(), opts.document, debounce, apply, logger)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "delay before re-applying after a change")
	return cmd
}

func newExplainCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "explain <environment> <path>",
		Short: "Show which layer supplies a value for an environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Load(opts.document)
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(opts.sets)
			if err != nil {
				return err
			}
			trace, err := doc.Trace(args[0], args[1], overrides)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				raw, err := trace.ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(raw))
				return nil
			}
			if !trace.Found {
				fmt.Fprintf(out, "%s: not set\n", trace.Path)
			} else {
				fmt.Fprintf(out, "%s = %v (from %s)\n", trace.Path, trace.Value, trace.Source)
			}
			for _, layer := range trace.Layers {
				if layer.Found {
					fmt.Fprintf(out, "  %-11s %-12s %v\n", layer.Level, layer.Layer, layer.Value)
				} else {
					fmt.Fprintf(out, "  %-11s %-12s -\n", layer.Level, layer.Layer)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the trace as JSON")
	return cmd
}

// resolveIndex accepts an environment name or a zero-based index.
func resolveIndex(selector *envflags.Selector[envflags.MapVariant], arg string) (int, error) {
	if index, ok := selector.IndexOf(arg); ok {
		return index, nil
	}
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", envflags.ErrVariantNotFound, arg)
	}
	return index, nil
}

func printResult(w io.Writer, result envflags.ApplyResult) {
	if result.Summary == "" {
		return
	}
	fmt.Fprintln(w, result.Summary)
	if len(result.Added) > 0 {
		fmt.Fprintf(w, "  added:   %s\n", strings.Join(result.Added, ";"))
	}
	if len(result.Removed) > 0 {
		fmt.Fprintf(w, "  removed: %s\n", strings.Join(result.Removed, ";"))
	}
	if len(result.Missing) > 0 {
		names := make([]string, len(result.Missing))
		for i, missing := range result.Missing {
			names[i] = missing.Feature
		}
		fmt.Fprintf(w, "  unbound: %s\n", strings.Join(names, ", "))
	}
}
