package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] file.wasm...",
	Short: "List the structures modules describe",
	Long: `Inspect loads each module, runs its initializer once and prints the
structures it describes. With --wit the structures are printed as WIT.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("wit", false, "print WIT declarations and signatures")
	inspectCmd.Flags().Bool("imports", false, "also list imports and exports")
	inspectCmd.Flags().Int("jobs", goruntime.GOMAXPROCS(0), "modules to load in parallel")
}

func runInspect(cmd *cobra.Command, args []string) error {
	asWIT, _ := cmd.Flags().GetBool("wit")
	showImports, _ := cmd.Flags().GetBool("imports")
	jobs, _ := cmd.Flags().GetInt("jobs")

	ctx := cmd.Context()
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	mods, err := rt.LoadFiles(ctx, jobs, args...)
	if err != nil {
		return err
	}
	out := os.Stdout
	for i, mod := range mods {
		if len(mods) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, dimColor.Sprintf("// %s (%s)", args[i], mod.Key()[:12]))
		}
		if showImports {
			for _, name := range mod.Imports() {
				fmt.Fprintf(out, "%s %s\n", kindColor.Sprint("import"), name)
			}
			for _, name := range mod.Exports() {
				fmt.Fprintf(out, "%s %s\n", kindColor.Sprint("export"), name)
			}
		}
		if asWIT {
			describeWIT(out, mod.Structures())
			continue
		}
		for _, s := range mod.Structures() {
			describe(out, s)
		}
	}
	return nil
}
