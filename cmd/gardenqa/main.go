// Command gardenqa answers gardening questions from the knowledge graph,
// recommends plants and manages the embedded graph store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joesaby/gardenqa"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	configPath string
	jsonOut    bool

	cfg       gardenqa.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "gardenqa",
		Short:        "Gardening knowledge graph question answering",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gardenqa.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			logger, closer, err := gardenqa.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			a.cfg, a.logCloser = cfg, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML or JSON config file")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newRecommendCmd(a),
		newSeedCmd(a),
		newIndexCmd(a),
		newStatsCmd(a),
	)
	return root
}

func (a *app) openEngine() (*gardenqa.Engine, error) {
	e, err := gardenqa.New(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
