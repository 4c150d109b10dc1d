package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-berg/metabonet/internal/config"
	"github.com/j-berg/metabonet/internal/export"
	"github.com/j-berg/metabonet/internal/graphstore"
	neo4jstore "github.com/j-berg/metabonet/internal/graphstore/neo4j"
	"github.com/j-berg/metabonet/internal/metrics"
	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/observability"
	"github.com/j-berg/metabonet/internal/score"
	"github.com/j-berg/metabonet/internal/search"
	"github.com/j-berg/metabonet/internal/selector"
)

func main() {
	var (
		nodesPath        string
		edgesPath        string
		measurementsPath string
		configPath       string
		outputPath       string
		runLabel         string
		jsonReport       bool
	)

	rootCmd := &cobra.Command{
		Use:   "metabonet",
		Short: "Active-module discovery in bipartite metabolic networks",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Search for active modules, select clusters, and export results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), configPath, nodesPath, edgesPath, measurementsPath, outputPath, runLabel, jsonReport)
		},
	}
	runCmd.Flags().StringVar(&nodesPath, "nodes", "", "Node list JSON file")
	runCmd.Flags().StringVar(&edgesPath, "edges", "", "Edge list JSON file")
	runCmd.Flags().StringVar(&measurementsPath, "measurements", "", "Measurement table JSON file")
	runCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	runCmd.Flags().StringVar(&outputPath, "output", "out", "Output directory")
	runCmd.Flags().StringVar(&runLabel, "run", "", "Run label for persistence (default: timestamp)")
	runCmd.Flags().BoolVar(&jsonReport, "json", false, "Output run metrics as JSON")
	_ = runCmd.MarkFlagRequired("nodes")
	_ = runCmd.MarkFlagRequired("edges")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report structural statistics of a network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyzeNetwork(nodesPath, edgesPath, measurementsPath)
		},
	}
	analyzeCmd.Flags().StringVar(&nodesPath, "nodes", "", "Node list JSON file")
	analyzeCmd.Flags().StringVar(&edgesPath, "edges", "", "Edge list JSON file")
	analyzeCmd.Flags().StringVar(&measurementsPath, "measurements", "", "Measurement table JSON file")
	_ = analyzeCmd.MarkFlagRequired("nodes")
	_ = analyzeCmd.MarkFlagRequired("edges")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the enriched network without searching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportEnriched(configPath, nodesPath, edgesPath, measurementsPath, outputPath)
		},
	}
	exportCmd.Flags().StringVar(&nodesPath, "nodes", "", "Node list JSON file")
	exportCmd.Flags().StringVar(&edgesPath, "edges", "", "Edge list JSON file")
	exportCmd.Flags().StringVar(&measurementsPath, "measurements", "", "Measurement table JSON file")
	exportCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	exportCmd.Flags().StringVar(&outputPath, "output", "out", "Output directory")
	_ = exportCmd.MarkFlagRequired("nodes")
	_ = exportCmd.MarkFlagRequired("edges")

	rootCmd.AddCommand(runCmd, analyzeCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runPipeline(ctx context.Context, configPath, nodesPath, edgesPath, measurementsPath, outputPath, runLabel string, jsonReport bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if runLabel == "" {
		runLabel = time.Now().UTC().Format("20060102T150405Z")
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "metabonet",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tp.Shutdown(ctx)

	m := metrics.New()

	fmt.Println("=== Loading network ===")
	net, err := network.LoadFiles(nodesPath, edgesPath, measurementsPath)
	if err != nil {
		return err
	}
	table := score.Compute(net, cfg.Search.StudyWeights)
	m.Network = metrics.NetworkMetrics{
		Nodes:       len(net.Nodes()),
		Edges:       len(net.Edges()),
		Metabolites: len(net.NodesOfType(network.Metabolite)),
		Reactions:   len(net.NodesOfType(network.Reaction)),
		Measured:    table.Len(),
		Components:  net.Components(),
	}
	fmt.Printf("  %d nodes, %d edges, %d measured\n", m.Network.Nodes, m.Network.Edges, m.Network.Measured)

	fmt.Println("\n=== Searching for active modules ===")
	searchCfg := cfg.SearchOptions()
	seeds := net.NodesOfType(network.Metabolite)
	sctx, span := observability.StartSearchSpan(ctx, len(seeds), searchCfg.Restarts)
	start := time.Now()
	result, err := search.Run(sctx, net, table, searchCfg)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return fmt.Errorf("search: %w", err)
	}
	observability.RecordSearchResult(span, result.Candidates, len(result.Modules), result.BudgetExhausted)
	span.End()
	m.Search = metrics.SearchMetrics{
		Seeds:           len(seeds),
		Restarts:        searchCfg.Restarts,
		Thresholds:      len(searchCfg.Overlaps),
		Candidates:      result.Candidates,
		Pooled:          len(result.Modules),
		BudgetExhausted: result.BudgetExhausted,
		Duration:        metrics.Millis(time.Since(start)),
	}
	fmt.Printf("  %d candidates, %d pooled across %d thresholds\n",
		result.Candidates, len(result.Modules), len(searchCfg.Overlaps))
	if result.BudgetExhausted {
		fmt.Println("  iteration budget exhausted; best-effort result")
	}

	fmt.Println("\n=== Selecting clusters ===")
	_, selSpan := observability.StartSelectSpan(ctx, len(result.Modules))
	selected, err := selector.Apply(net, table, result.Modules, cfg.SelectionOptions())
	if err != nil {
		observability.RecordError(selSpan, err)
		selSpan.End()
		return fmt.Errorf("select: %w", err)
	}
	prunedTotal := 0
	for _, s := range selected {
		prunedTotal += s.Pruned
	}
	observability.RecordSelectResult(selSpan, len(selected), prunedTotal)
	selSpan.End()
	m.Selection = metrics.SelectionMetrics{
		Input:       len(result.Modules),
		Passed:      len(selected),
		PrunedNodes: prunedTotal,
	}
	fmt.Printf("  %d modules selected, %d context nodes pruned\n", len(selected), prunedTotal)

	fmt.Println("\n=== Exporting ===")
	if err := writeExports(ctx, net, table, selected, outputPath); err != nil {
		return err
	}
	fmt.Printf("  written to %s\n", outputPath)

	if cfg.Store.Enabled {
		repo, err := neo4jstore.New(ctx, cfg.Store.URI, cfg.Store.Username, cfg.Store.Password)
		if err != nil {
			return fmt.Errorf("graph store: %w", err)
		}
		defer repo.Close(ctx)
		if err := persist(ctx, repo, runLabel, net, table, selected); err != nil {
			return err
		}
		fmt.Printf("  persisted run %s to %s\n", runLabel, cfg.Store.URI)
	}

	var errs []string
	for _, se := range result.SeedErrors {
		errs = append(errs, se.Error())
	}
	m.Finish(errs)

	if jsonReport {
		data, _ := m.JSON()
		fmt.Println(string(data))
	} else {
		m.PrintSummary(os.Stdout)
	}
	return nil
}

func writeExports(ctx context.Context, net *network.Network, table *score.Table, selected []selector.Selected, outputPath string) error {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}

	_, span := observability.StartExportSpan(ctx, "modules")
	modulesJSON, err := export.ModulesJSON(net, selected)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return fmt.Errorf("export modules: %w", err)
	}
	span.End()
	if err := os.WriteFile(filepath.Join(outputPath, "modules.json"), modulesJSON, 0o644); err != nil {
		return err
	}

	enriched, err := export.BuildEnriched(net, table).JSON()
	if err != nil {
		return fmt.Errorf("export enriched network: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputPath, "network_enriched.json"), enriched, 0o644); err != nil {
		return err
	}

	cyto, err := export.Cytoscape(net, table)
	if err != nil {
		return fmt.Errorf("export cytoscape: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputPath, "network_cytoscape.json"), cyto, 0o644); err != nil {
		return err
	}

	dot := export.ModulesDOT(net, selected)
	return os.WriteFile(filepath.Join(outputPath, "modules.dot"), []byte(dot), 0o644)
}

func persist(ctx context.Context, repo graphstore.Repository, run string, net *network.Network, table *score.Table, selected []selector.Selected) error {
	if err := repo.StoreNetwork(ctx, run, export.BuildEnriched(net, table)); err != nil {
		return err
	}
	return repo.StoreModules(ctx, run, export.Modules(net, selected))
}

func analyzeNetwork(nodesPath, edgesPath, measurementsPath string) error {
	net, err := network.LoadFiles(nodesPath, edgesPath, measurementsPath)
	if err != nil {
		return err
	}
	table := score.Compute(net, nil)

	fmt.Println("Network Statistics")
	fmt.Println("==================")
	fmt.Printf("Nodes:       %d\n", len(net.Nodes()))
	fmt.Printf("  Metabolites: %d\n", len(net.NodesOfType(network.Metabolite)))
	fmt.Printf("  Reactions:   %d\n", len(net.NodesOfType(network.Reaction)))
	fmt.Printf("Edges:       %d\n", len(net.Edges()))
	fmt.Printf("Components:  %d\n", net.Components())
	fmt.Printf("Measured:    %d nodes across %d studies\n", table.Len(), len(table.Studies()))

	maxDegree, hub := 0, ""
	for _, id := range net.Nodes() {
		d, _ := net.Degree(id)
		if d > maxDegree {
			maxDegree, hub = d, id
		}
	}
	if hub != "" {
		fmt.Printf("Max degree:  %d (%s)\n", maxDegree, hub)
	}
	return nil
}

func exportEnriched(configPath, nodesPath, edgesPath, measurementsPath, outputPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	net, err := network.LoadFiles(nodesPath, edgesPath, measurementsPath)
	if err != nil {
		return err
	}
	table := score.Compute(net, cfg.Search.StudyWeights)

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}
	enriched, err := export.BuildEnriched(net, table).JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outputPath, "network_enriched.json"), enriched, 0o644); err != nil {
		return err
	}
	cyto, err := export.Cytoscape(net, table)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outputPath, "network_cytoscape.json"), cyto, 0o644); err != nil {
		return err
	}
	fmt.Printf("Exported enriched network to %s\n", outputPath)
	return nil
}
