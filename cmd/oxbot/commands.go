package main

import (
	"github.com/spf13/cobra"

	"github.com/martinemde/oxbot/transcript"
)

func buildChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	}
}

func buildRunCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Send one prompt and print the conversation",
		Long: `Send one prompt and print the streamed answer. Proposed code is shown and
confirmed on stdin unless --yes is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, flags, args, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Run proposed code without asking")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings with credentials hidden",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(cmd, flags)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting, e.g. features.auto_run",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(cmd, flags, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting and save the file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd, flags, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigPath(cmd, flags)
			},
		},
	)
	return cmd
}

func buildHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured model endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, flags)
		},
	}
}

// buildHistoryCmd creates the "history" command group.
func buildHistoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, export and delete saved conversations",
	}

	var (
		format string
		output string
	)
	exportCmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a conversation as Markdown or text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryExport(cmd, flags, args[0], format, output)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", string(transcript.FormatMarkdown), "Export format: md or txt")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file; \"-\" for stdout (default chat_<timestamp>.<format>)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved conversations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHistoryList(cmd, flags)
			},
		},
		exportCmd,
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a saved conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHistoryDelete(cmd, flags, args[0])
			},
		},
	)
	return cmd
}
