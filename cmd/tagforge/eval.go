package main

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "eval [template...]",
		Short: "Evaluate a tag template",
		Long:  "Evaluate a template given as arguments, with --file, or on stdin (\"-\").",
		Run:   runEval,
	}
	addInvocationFlags(cmd)
	cmd.Flags().String("file", "", "Read the template from a file")
	cmd.Flags().StringP("args", "a", "", "Invocation arguments")
	cmd.Flags().StringP("out", "o", ".", "Directory attachments are written to")
	RootCmd.AddCommand(cmd)
}

func runEval(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	tagArgs, _ := cmd.Flags().GetString("args")
	out, _ := cmd.Flags().GetString("out")

	template, err := readSource(args, file)
	if err != nil {
		exitErr("read template", err)
	}

	cfg, logger := loadConfig()
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	msg, err := a.engine.Evaluate(cmd.Context(), invocation(template), template, tagArgs)
	if err != nil {
		exitErr("evaluate", err)
	}
	printMessage(msg, out)
}
