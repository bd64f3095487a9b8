// Package main provides ragctl, the command-line client for the document index.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docrag-mcp-server/internal/app"
	"github.com/bull/docrag-mcp-server/internal/config"
	"github.com/bull/docrag-mcp-server/internal/github"
	"github.com/bull/docrag-mcp-server/internal/indexer"
	"github.com/bull/docrag-mcp-server/internal/retrieval"
	"github.com/bull/docrag-mcp-server/internal/source"
)

var (
	configPath string
	topK       int
	threshold  float64
	typeHint   string
	jsonOutput bool

	ghOwner string
	ghRepo  string
	ghRef   string
	ghPath  string
	ghClear bool
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Document retrieval index tool",
	Long: `CLI tool for ingesting documents into the retrieval index and querying it.

Environment variables:
  DOCRAG_CONFIG       Path to a YAML config file (optional)
  STORE_BACKEND       memory, sqlite or qdrant (default: sqlite)
  EMBEDDING_PROVIDER  openai or fallback (default: fallback)
  OPENAI_API_KEY      Enables OpenAI embeddings and generated answers
  GITHUB_TOKEN        GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>",
	Short: "Ingest a file or every document under a directory",
	Long: `Ingests text and markdown files. A binary original such as scan.pdf is
ingested from its extracted text in a sidecar file named scan.pdf.txt.
Re-ingesting the same file replaces the earlier version.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the index and print matching chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question and decide whether to return the original file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index counts and store health",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every document from the index",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var syncGitHubCmd = &cobra.Command{
	Use:   "sync-github",
	Short: "Ingest every document under a path of a GitHub repository",
	Args:  cobra.NoArgs,
	RunE:  runSyncGitHub,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DOCRAG_CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	for _, cmd := range []*cobra.Command{queryCmd, askCmd} {
		cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
		cmd.Flags().Float64Var(&threshold, "threshold", -2, "minimum cosine similarity (default from config)")
	}
	askCmd.Flags().StringVar(&typeHint, "type", "", "kind of document wanted, e.g. passport")

	syncGitHubCmd.Flags().StringVar(&ghOwner, "owner", "", "repository owner")
	syncGitHubCmd.Flags().StringVar(&ghRepo, "repo", "", "repository name")
	syncGitHubCmd.Flags().StringVar(&ghRef, "ref", "", "branch, tag or commit (default branch when empty)")
	syncGitHubCmd.Flags().StringVar(&ghPath, "path", "", "directory within the repository")
	syncGitHubCmd.Flags().BoolVar(&ghClear, "clear", false, "clear the index before syncing")
	syncGitHubCmd.MarkFlagRequired("owner")
	syncGitHubCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(ingestCmd, queryCmd, askCmd, deleteCmd, listCmd, statusCmd, resetCmd, syncGitHubCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if app.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// openApp loads configuration and wires the pipeline. Logs go to stderr so
// command output stays clean.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	return app.New(cmd.Context(), cfg, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Ingesting %s...\n", args[0])
	pipeline := indexer.NewPipeline(source.NewDirectory(args[0], a.Converter), a.Orchestrator, a.Logger)
	return printIndexResult(pipeline.IndexAll(cmd.Context()))
}

func runSyncGitHub(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fetcher := github.NewFetcher(a.GitHub, github.Repo{
		Owner:    ghOwner,
		Name:     ghRepo,
		Ref:      ghRef,
		BasePath: ghPath,
	})

	if ghClear {
		fmt.Println("Clearing existing index...")
		if err := a.Orchestrator.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	fmt.Printf("Indexing documents from github.com/%s/%s...\n", ghOwner, ghRepo)
	pipeline := indexer.NewPipeline(source.NewGitHub(fetcher, a.Converter), a.Orchestrator, a.Logger)
	return printIndexResult(pipeline.IndexAll(cmd.Context()))
}

func printIndexResult(result *indexer.IndexResult, err error) error {
	if result == nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if jsonOutput {
		if encErr := printJSON(result); encErr != nil {
			return encErr
		}
		return err
	}

	fmt.Println()
	fmt.Println("Ingest complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.Revision != "" {
		fmt.Printf("  Revision: %s\n", result.Revision)
	}
	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return err
}

func searchParams(cfg *config.Config) (int, float64) {
	k := topK
	if k <= 0 {
		k = cfg.Retrieval.TopK
	}
	t := threshold
	if t < -1 {
		t = cfg.Retrieval.Threshold
	}
	return k, t
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	k, t := searchParams(a.Config)
	results, err := a.Orchestrator.Search(cmd.Context(), strings.Join(args, " "), k, t)
	if err != nil {
		return err
	}
	if jsonOutput {
		type hit struct {
			DocumentID string  `json:"document_id"`
			Document   string  `json:"document"`
			ChunkIndex int     `json:"chunk_index"`
			Score      float64 `json:"score"`
			Text       string  `json:"text"`
		}
		hits := make([]hit, 0, len(results))
		for _, r := range results {
			hits = append(hits, hit{r.Chunk.DocumentID, r.Document.Name, r.Chunk.Index, r.Score, r.Chunk.Text})
		}
		return printJSON(hits)
	}

	if len(results) == 0 {
		fmt.Println("No matching chunks found.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. %s (chunk %d, score %.3f)\n", i+1, r.Document.Name, r.Chunk.Index, r.Score)
		fmt.Printf("   %s\n\n", strings.ReplaceAll(r.Chunk.Text, "\n", "\n   "))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	k, t := searchParams(a.Config)
	qr, err := a.Orchestrator.Answer(cmd.Context(), retrieval.AnswerRequest{
		Query:     strings.Join(args, " "),
		K:         k,
		Threshold: t,
		TypeHint:  typeHint,
	})
	if err != nil {
		return err
	}
	d := qr.Decision
	if jsonOutput {
		return printJSON(d)
	}

	fmt.Printf("[%s, confidence %.1f]\n", d.Classification, d.Confidence)
	if d.Text != "" {
		fmt.Println(d.Text)
	}
	if d.Artifact != nil {
		fmt.Printf("\nFile: %s (%s, %d bytes)\n  %s\n", d.Artifact.Name, d.Artifact.ContentType, d.Artifact.Size, d.Artifact.Location)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Orchestrator.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Orchestrator.ListDocuments(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(docs)
	}
	if len(docs) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %-10s %4d chunks  %s\n", d.ID, d.Status, d.ChunkCount, d.Name)
		if d.Error != "" {
			fmt.Printf("    error: %s\n", d.Error)
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Orchestrator.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Index cleared")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Orchestrator.Status(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(st)
	}

	fmt.Printf("Store: %s (healthy: %t)\n", a.Config.Store.Backend, st.Healthy)
	if st.Error != "" {
		fmt.Printf("  error: %s\n", st.Error)
	}
	fmt.Printf("Provider: %s (%d dimensions)\n", st.Provider, st.Dimension)
	fmt.Printf("Documents: %d\n", st.Documents)
	for s, n := range st.ByStatus {
		fmt.Printf("  %s: %d\n", s, n)
	}
	fmt.Printf("Chunks: %d\n", st.Chunks)
	if !st.Healthy {
		return errors.New("store is unhealthy")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
