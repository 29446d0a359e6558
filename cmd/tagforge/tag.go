package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tag <name|show|raw|info|create|edit|delete|transfer|list> [args...]",
		Short: "Run or manage stored tags",
		Long: `Run the chat tag command line against the configured store.

  tagforge tag greet world
  tagforge tag create greet hello {arg:0}
  tagforge tag --guild g1 --elevated edit --server rules be kind
  tagforge tag list`,
		Run: runTag,
	}
	addInvocationFlags(cmd)
	cmd.Flags().StringP("out", "o", ".", "Directory attachments are written to")
	// Flags after the first word belong to the tag command line.
	cmd.Flags().SetInterspersed(false)
	RootCmd.AddCommand(cmd)
}

func runTag(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	line := strings.Join(args, " ")

	cfg, logger := loadConfig()
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	msg, err := a.engine.Command(cmd.Context(), invocation("tag "+line), line)
	if err != nil {
		exitErr("tag", err)
	}
	printMessage(msg, out)
}
