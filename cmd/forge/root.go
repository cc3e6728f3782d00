package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"forge/internal/agent"
	"forge/internal/config"
	"forge/internal/logging"
	"forge/internal/ollama"
	"forge/internal/workspace"
)

const version = "1.0.0"

var (
	flagModel   string
	flagWorkdir string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "forge",
		Short:   "Local AI coding agent driven by ollama",
		Long:    "forge drives a locally hosted model through ollama to write code,\ndesign projects, build them from designs, debug failures, and generate tests.\nAll file changes stay inside the working directory and keep .backup copies.",
		Version: version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model to use (overrides config and LOCAL_AI_MODEL)")
	root.PersistentFlags().StringVar(&flagWorkdir, "cwd", "", "project directory (default: current directory)")

	root.AddCommand(
		newModeCmd("code", "Interactive coding session", "Make precise changes to the project in a conversational loop."),
		newModeCmd("design", "Write or refine a design document", "Produce a <project>.design document iteratively."),
		newCraftCmd(),
		newModeCmd("debug", "Diagnose and fix a failure", "Analyze an error, apply the smallest fix, and verify it."),
		newTestCmd(),
	)
	return root
}

func newModeCmd(mode, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   mode + " [request]",
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, mode, args, nil)
		},
	}
}

func newCraftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "craft [design files...]",
		Short: "Implement a project from its design document(s)",
		Long:  "Build the project described by one or more .design documents.\nWithout arguments, design documents are discovered in the project directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var designs []string
			var request []string
			for _, arg := range args {
				if strings.HasSuffix(arg, workspace.DesignSuffix) {
					designs = append(designs, arg)
				} else {
					request = append(request, arg)
				}
			}
			return runMode(cmd, "craft", request, designs)
		},
	}
}

func newTestCmd() *cobra.Command {
	cmd := newModeCmd("test", "Generate tests for the project", "Write tests in the project's existing framework and run them.")
	cmd.Aliases = []string{"check"}
	return cmd
}

func runMode(cmd *cobra.Command, mode string, requestArgs, designFiles []string) error {
	cfg, err := config.LoadUserConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	logger := logging.Setup(cfg.LogPath)

	workdir := flagWorkdir
	if workdir == "" {
		workdir, err = os.Getwd()
		if err != nil {
			return err
		}
	}
	guard, err := workspace.NewGuard(workdir)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ollama.New(cfg.Model, cfg.ModelTimeout(), logger)
	if err := client.Available(ctx); err != nil {
		if errors.Is(err, ollama.ErrUnavailable) {
			return fmt.Errorf("ollama is not installed or not responding; install it from https://ollama.com and run `ollama pull %s`", client.Model())
		}
		return err
	}

	if mode == "craft" && len(designFiles) == 0 {
		found, err := workspace.FindDesignFiles(guard)
		if err == nil && len(found) == 0 {
			return fmt.Errorf("no .design documents found; run `forge design` first or pass design files explicitly")
		}
	}

	a, err := agent.New(mode, cfg, guard, client, logger, agent.Options{
		DesignFiles: designFiles,
	})
	if err != nil {
		return err
	}

	// A request on the command line runs once; otherwise enter the REPL.
	if len(requestArgs) > 0 {
		return a.Process(ctx, strings.Join(requestArgs, " "))
	}
	return a.Run(ctx)
}
