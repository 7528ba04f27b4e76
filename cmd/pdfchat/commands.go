package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bull/pdfchat-server/internal/app"
	"github.com/bull/pdfchat-server/internal/config"
	"github.com/bull/pdfchat-server/internal/httpapi"
	"github.com/bull/pdfchat-server/internal/logging"
	mcpserver "github.com/bull/pdfchat-server/internal/mcp"
	"github.com/bull/pdfchat-server/internal/service"
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	failed  = color.New(color.FgRed).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat",
	Short: "Upload PDFs and ask questions about them",
	Long: `Command-line access to the PDF question-answering service.

Settings come from the environment, a .env file in the working directory, or
the file named by PDFCHAT_CONFIG. Common variables:
  VECTOR_BACKEND      local or qdrant (default: local)
  UPLOAD_DIR          staged uploads (default: uploads)
  VECTORDB_DIR        local indexes (default: vectorDB)
  EMBEDDING_PROVIDER  openai or hash (default: openai)
  SYNTHESIS_PROVIDER  openai or extractive (default: openai)
  OPENAI_API_KEY      required when an openai provider is selected`,
	SilenceUsage: true,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>...",
	Short: "Index one or more PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

var askCmd = &cobra.Command{
	Use:   "ask <document-id> <question>...",
	Short: "Ask a question about an uploaded document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document's index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every staged upload and every index",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document tools over MCP stdio",
	Long: `Runs an MCP server on stdin/stdout for local MCP clients.
Tools: list_documents, ask_document, delete_document.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	clearCmd.Flags().Bool("yes", false, "skip the confirmation check")
	rootCmd.AddCommand(uploadCmd, askCmd, listCmd, deleteCmd, clearCmd, mcpCmd)
}

// open loads configuration and builds the service. Logs go to stderr so
// stdout stays clean for results and the MCP stdio transport.
func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var failures int
	for _, path := range args {
		start := time.Now()
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", failed("✗"), path, err)
			failures++
			continue
		}

		res, err := a.Service.Upload(ctx, filepath.Base(path), data)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", failed("✗"), path, err)
			failures++
			continue
		}
		fmt.Fprintf(out, "%s %s → %s %s\n", success("✓"), path, res.DocumentID,
			faint(fmt.Sprintf("(%d pages, %d chunks, %d total, %s)",
				res.Pages, res.Chunks, res.Total, time.Since(start).Round(time.Millisecond))))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d uploads failed", failures, len(args))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.Ask(ctx, args[0], strings.Join(args[1:], " "))
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("document '%s' not found, upload it first", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.Service.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, faint("No documents uploaded"))
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	msg, err := a.Service.Delete(ctx, args[0])
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("document '%s' not found", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", success("✓"), msg)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return errors.New("refusing to clear all data without --yes")
	}

	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.ClearAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", success("✓"), res.Message)
	fmt.Fprintf(cmd.OutOrStdout(), "  Files: %d\n  Indexes: %d\n", res.DeletedFiles, res.DeletedIndexes)
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Service: a.Service,
		Version: httpapi.Version,
	})
	return server.Run(ctx)
}
