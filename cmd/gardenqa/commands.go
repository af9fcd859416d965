package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joesaby/gardenqa"
	"github.com/joesaby/gardenqa/answer"
	"github.com/joesaby/gardenqa/recommend"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		county, plantType, soil, season, property string
		noGenerate                                bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a gardening question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			opts := []gardenqa.AskOption{gardenqa.WithContext(map[string]string{
				"county":          county,
				"plantType":       plantType,
				"soilType":        soil,
				"season":          season,
				"growingProperty": property,
			})}
			if noGenerate {
				opts = append(opts, gardenqa.WithoutGeneration())
			}
			ans, err := engine.AnswerQuestion(cmd.Context(), strings.Join(args, " "), opts...)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), ans)
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&county, "county", "", "override the extracted county")
	f.StringVar(&plantType, "plant-type", "", "override the extracted plant type")
	f.StringVar(&soil, "soil", "", "override the extracted soil type")
	f.StringVar(&season, "season", "", "override the extracted season")
	f.StringVar(&property, "property", "", "plant property to report, e.g. sunNeeds")
	f.BoolVar(&noGenerate, "no-generate", false, "print the retrieved facts without generating an answer")
	return cmd
}

func printAnswer(w io.Writer, ans *answer.Answer) {
	if ans.Text != "" {
		fmt.Fprintln(w, ans.Text)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Confidence: %.2f\n", ans.Confidence)
	if len(ans.Relaxed) > 0 {
		fmt.Fprintf(w, "Relaxed: %s\n", strings.Join(ans.Relaxed, ", "))
	}
	if ans.Trace != nil && !ans.Trace.Success {
		fmt.Fprintln(w, "No matching plants were found in the knowledge graph.")
	}
	if len(ans.Facts) > 0 {
		fmt.Fprintln(w, "Facts:")
		for _, f := range ans.Facts {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

func newRecommendCmd(a *app) *cobra.Command {
	var (
		cond   recommend.Conditions
		native bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend plants for a county and sun exposure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("native") {
				cond.NativeOnly = &native
			}
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			cands, err := engine.RecommendPlants(cmd.Context(), cond)
			if err != nil {
				return err
			}
			if limit > 0 && len(cands) > limit {
				cands = cands[:limit]
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), cands)
			}
			printCandidates(cmd.OutOrStdout(), cands)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cond.County, "county", "", "county name (default from param defaults)")
	f.StringVar(&cond.SunExposure, "sun", "", "sun exposure, e.g. \"Full Sun\"")
	f.StringSliceVar(&cond.PlantTypes, "type", nil, "plant categories to include")
	f.BoolVar(&native, "native", false, "only native plants (set false to exclude them)")
	f.IntVar(&limit, "limit", 10, "maximum recommendations to print (0 for all)")
	return cmd
}

func printCandidates(w io.Writer, cands []recommend.ScoredCandidate) {
	if len(cands) == 0 {
		fmt.Fprintln(w, "No plants match these conditions.")
		return
	}
	for i, c := range cands {
		fmt.Fprintf(w, "%2d. %-20s %3d%%  score %d", i+1, c.Plant.Name, c.MatchPercentage, c.Score)
		if len(c.Pollinators) > 0 {
			fmt.Fprintf(w, "  attracts %s", strings.Join(c.Pollinators, ", "))
		}
		fmt.Fprintln(w)
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var index bool
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a graph file (.json, .yaml or .xlsx) into the embedded store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.Seed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d nodes and %d relationships from %s\n",
				stats.Nodes, stats.Relationships, args[0])
			if !index {
				return nil
			}
			n, err := engine.IndexEmbeddings(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d plants\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&index, "index", false, "embed new plants after loading")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed plants that have no vector yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			n, err := engine.IndexEmbeddings(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d plants\n", n)
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count nodes, relationships and embeddings in the embedded store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			st, err := engine.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), st)
			}
			w := cmd.OutOrStdout()
			printCounts(w, "Nodes", st.Nodes)
			printCounts(w, "Relationships", st.Edges)
			fmt.Fprintf(w, "Embeddings: %d\n", st.Embeddings)
			return nil
		},
	}
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "%s:\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-18s %d\n", k, counts[k])
	}
}
