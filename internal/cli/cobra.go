package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"photofinish/internal/config"
	"photofinish/internal/pipeline"
	"photofinish/internal/storage"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	return buildRootCmd(NewRoot(pipe, cfg, log, store))
}

func buildRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photofinish",
		Short: "Photofinish is a batch image finishing pipeline",
		Long: `Photofinish removes white backgrounds from product photos, crops and pads
them, assembles collages and merges overlay templates, in configurable batches.`,
	}

	rootCmd.AddCommand(newProcessCmd(root))
	rootCmd.AddCommand(newCollageCmd(root))
	rootCmd.AddCommand(newMergeCmd(root))
	rootCmd.AddCommand(newScanCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newProcessCmd(root *Root) *cobra.Command {
	var (
		output  string
		article string
	)

	cmd := &cobra.Command{
		Use:   "process <input_file_or_directory>",
		Short: "Finish images individually",
		Long: `Run the full finishing chain on each image: whitening, background
removal, crop, pad, tone and output sizing. Files in a directory are
processed in natural filename order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if output == "" {
				output = root.cfg.Paths.DefaultOutput
			}
			if article != "" {
				root.cfg.Individual.EnableRename = true
				root.cfg.Individual.ArticleName = article
			}

			files, err := resolveInputs(input)
			if err != nil {
				return err
			}

			root.log.Info("process command parsed",
				"input", input,
				"output", output,
				"files", len(files),
			)

			return root.submitIndividual(cmd.Context(), files, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	cmd.Flags().StringVar(&article, "article", "", "rename outputs to <article>_NN, overriding config")

	return cmd
}

func newCollageCmd(root *Root) *cobra.Command {
	var (
		output string
		cols   int
		rows   int
	)

	cmd := &cobra.Command{
		Use:   "collage <input_directory>",
		Short: "Assemble finished images into a collage",
		Long: `Finish every image in the directory and lay them out on a single canvas.
The grid defaults to a near-square arrangement; forced columns or rows
override it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if cols > 0 {
				root.cfg.Collage.ForcedCols = cols
			}
			if rows > 0 {
				root.cfg.Collage.ForcedRows = rows
			}
			if output == "" {
				output = defaultCollageOutput(input, root.cfg.Paths.DefaultOutput)
			}

			files, err := resolveInputs(input)
			if err != nil {
				return err
			}

			root.log.Info("collage command parsed",
				"input", input,
				"output", output,
				"files", len(files),
			)

			return root.submitCollage(cmd.Context(), files, input, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.Flags().IntVar(&cols, "cols", 0, "force column count, overriding config")
	cmd.Flags().IntVar(&rows, "rows", 0, "force row count, overriding config")

	return cmd
}

func newMergeCmd(root *Root) *cobra.Command {
	var (
		output   string
		tpl      string
		position string
	)

	cmd := &cobra.Command{
		Use:   "merge <input_file>",
		Short: "Overlay the configured template onto an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if tpl != "" {
				root.cfg.Merge.TemplatePath = tpl
			}
			if position != "" {
				root.cfg.Merge.Position = position
			}
			if output == "" {
				output = filepath.Join(root.cfg.Paths.DefaultOutput, filepath.Base(input))
			}

			job := pipeline.Job{
				ID:        newID("merge"),
				Type:      pipeline.JobMerge,
				InputPath: input,
				Output:    output,
				Options:   map[string]any{"source": "cli"},
			}
			return root.enqueueAndWait(cmd.Context(), job)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&tpl, "template", "", "template image path, overriding config")
	cmd.Flags().StringVar(&position, "position", "", "template position (center|top|bottom|left|right|top_left|top_right|bottom_left|bottom_right)")

	return cmd
}

func newScanCmd(root *Root) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "scan <input_directory>",
		Short: "Scan a directory tree for collage candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = root.cfg.Paths.DefaultOutput
			}
			job := pipeline.Job{
				ID:        newID("scan"),
				Type:      pipeline.JobScan,
				InputPath: args[0],
				Output:    output,
				Options:   map[string]any{"source": "cli"},
			}
			return root.enqueueAndWait(cmd.Context(), job)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		output string
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <input_directory>",
		Short: "Watch a directory and finish new images as they appear",
		Long: `Monitor a directory and run the finishing chain on every image written
into it. Processing starts once a file has stopped changing for the
settle interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = root.cfg.Paths.DefaultOutput
			}
			root.log.Info("watching for new images", "dir", args[0], "output", output, "settle", settle)
			return root.watchAndProcess(cmd.Context(), args[0], output, settle)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "quiet period before a new file is processed")

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP status server",
		Long: `Start an HTTP server exposing job history, a server-sent event stream
and a websocket feed of live job results.

Examples:
  photofinish serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			root.log.Info("server ready",
				"addr", addr,
				"endpoints", []string{"/healthz", "/jobs", "/stream", "/ws"},
			)

			return root.serveFn(ctx, addr, root.store, root.pipeline, root.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "server address (host:port)")

	return cmd
}

func newHistoryCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := root.store.RecentJobs(limit)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				line := fmt.Sprintf("%-28s %-10s %-9s %s", rec.ID, rec.JobType, rec.Status, rec.InputPath)
				if rec.Error != "" {
					line += "  error: " + rec.Error
				}
				fmt.Fprintln(os.Stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")

	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate photofinish configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(root.cfg)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Photofinish v1.0.0")
		},
	}
}
