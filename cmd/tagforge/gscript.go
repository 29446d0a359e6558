package main

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:     "gscript [script...]",
		Aliases: []string{"run"},
		Short:   "Run a GScript media pipeline",
		Long:    "Run a script given as arguments, with --file, or on stdin (\"-\"). Rendered files are written to --out.",
		Run:     runGScript,
	}
	addInvocationFlags(cmd)
	cmd.Flags().String("file", "", "Read the script from a file")
	cmd.Flags().StringP("out", "o", ".", "Directory rendered files are written to")
	RootCmd.AddCommand(cmd)
}

func runGScript(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	out, _ := cmd.Flags().GetString("out")

	script, err := readSource(args, file)
	if err != nil {
		exitErr("read script", err)
	}

	cfg, logger := loadConfig()
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	msg, err := a.engine.RunScript(cmd.Context(), invocation(script), script)
	if err != nil {
		exitErr("gscript", err)
	}
	printMessage(msg, out)
}
