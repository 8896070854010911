package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blacktop/go-swiftmeta"
)

var (
	configFile string
	noColor    bool
	verbose    bool
	output     io.Writer = os.Stdout

	conf = swiftmeta.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "swift-layout",
	Short: "Decode Swift struct layouts from runtime metadata",
	Long: `swift-layout lays out Swift 5 struct metadata in a synthetic address
space and decodes it back into field names, mangled types and offsets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if configFile != "" {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			if conf, err = swiftmeta.ParseConfig(data); err != nil {
				return err
			}
		}
		if err := conf.ApplyEnv(); err != nil {
			return err
		}
		if verbose {
			conf.Debug = true
		}
		if conf.Debug {
			l, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			swiftmeta.SetLogger(l)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = swiftmeta.Logger().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "show addresses, offsets and debug logs")

	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
