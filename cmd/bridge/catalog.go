package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/runtime"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [flags] file",
	Short: "Write or read a structure catalog",
	Long: `Catalog records the structures a module describes into a msgpack file
that can be replayed without running the module. With --read the file is a
catalog and its structures are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringP("output", "o", "", "catalog file to write (default <file>.catalog)")
	catalogCmd.Flags().Bool("read", false, "read a catalog instead of a module")
	catalogCmd.Flags().Bool("wit", false, "with --read, print WIT")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	read, _ := cmd.Flags().GetBool("read")
	if read {
		return readCatalog(cmd, args[0])
	}

	ctx := cmd.Context()
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	mod, err := rt.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	b, err := mod.Catalog().Encode()
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = args[0] + ".catalog"
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s %d structures, %d ops -> %s\n",
		nameColor.Sprint("wrote"), len(mod.Structures()), len(mod.Catalog().Ops), out)
	return nil
}

func readCatalog(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := runtime.LoadCatalog(path, cfg.BigEndian)
	if err != nil {
		return err
	}
	asWIT, _ := cmd.Flags().GetBool("wit")
	if asWIT {
		describeWIT(os.Stdout, reg.Structures())
		return nil
	}
	for _, s := range reg.Structures() {
		describe(os.Stdout, s)
	}
	return nil
}
