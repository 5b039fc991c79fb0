package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/WinDbg-Libraries/generator/generator"
)

var (
	flagManifest string
	flagDir      string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "dbgmodel-generator",
	Short: "Generate typed object model accessors from a binding manifest",
	Long: "dbgmodel-generator reads a yaml manifest describing the classes, enums,\n" +
		"public symbols and constants a package exposes to the object model, and\n" +
		"writes a generated file with typed Go accessors next to the package sources.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generator.Generate(flagDir, flagManifest, flagVerbose)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagManifest, "manifest", "m", "bindings.yaml", "path to the binding manifest")
	rootCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "package directory to generate into")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log what is generated")
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
