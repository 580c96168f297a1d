package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/treewskyblue/Medvise/internal/api"
	"github.com/treewskyblue/Medvise/internal/config"
	"github.com/treewskyblue/Medvise/internal/helper"
	"github.com/treewskyblue/Medvise/internal/llmservice"
	"github.com/treewskyblue/Medvise/internal/mcpserver"
	"github.com/treewskyblue/Medvise/internal/orchestrator"
)

const version = "0.1.0"

var configFilePath string

func main() {
	root := &cobra.Command{
		Use:           "medvise",
		Short:         "Guideline-grounded TPN decision support",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFilePath, "config", "c", "./configs/config.yaml", "path to the config file")
	root.AddCommand(serveCmd(), reindexCmd(), askCmd(), mcpCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setup loads the config, configures logging and wires the app
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logger := helper.SetupLogger(cfg.Log, os.Stderr)
	logger.Debug().Str("config", configFilePath).Msg("Loaded config")

	return newApp(cmd.Context(), cfg, logger)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the guideline directory and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reindex(cmd.Context()); err != nil {
				return fmt.Errorf("initial indexing failed: %w", err)
			}
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			if a.cfg.Storage.Watch {
				go func() {
					delay := time.Duration(a.cfg.Storage.WatchDelayMs) * time.Millisecond
					if err := a.store.Watch(cmd.Context(), delay); err != nil {
						a.log.Error().Err(err).Msg("Guideline watcher stopped")
					}
				}()
			}

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           api.NewServer(orch, a.store, a.cfg.Server.MaxUploadBytes, a.log.With().Str("component", "api").Logger()).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", srv.Addr).Msg("Serving API")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
				a.log.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	return cmd
}

func reindexCmd() *cobra.Command {
	var exportPath, importPath, key string
	var compress bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the guideline directory",
		Long: `Re-ingests every supported guideline file and rebuilds the vector index.

With the chromem backend the collection can also be exported to, or restored
from, an encrypted snapshot file:
  medvise reindex --export backup.gob.gz --key <32-byte key> --compress
  medvise reindex --import backup.gob.gz --key <32-byte key>`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if (exportPath != "" || importPath != "") && a.chrom == nil {
				return errors.New("snapshots require the chromem backend")
			}
			if importPath != "" {
				if err := a.chrom.Import(importPath, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d chunks\n", a.chrom.Count(cmd.Context()))
				return nil
			}

			res, err := a.store.ReindexAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files into %d chunks\n", len(res.Loaded), len(res.Chunks))
			for name, ferr := range res.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s: %v\n", name, ferr)
			}

			if exportPath != "" {
				if err := a.chrom.Export(exportPath, compress, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", exportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write a snapshot of the collection after reindexing")
	cmd.Flags().StringVar(&importPath, "import", "", "restore the collection from a snapshot instead of reindexing")
	cmd.Flags().StringVar(&key, "key", "", "snapshot encryption key (empty for none)")
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the exported snapshot")
	return cmd
}

func askCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run a single chat turn against the indexed guidelines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			resp, err := orch.Ask(cmd.Context(), orchestrator.Request{
				Message: strings.Join(args, " "),
				History: []llmservice.Turn{},
			})

			if asJSON {
				if perr := helper.PrettyPrint(cmd.OutOrStdout(), resp); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
				if resp.Error != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", resp.Error)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func mcpCmd() *cobra.Command {
	var sseAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose guideline search as an MCP tool",
		Long: `Starts a Model Context Protocol server with a single search_guidelines tool.

By default the server speaks JSON-RPC over stdio. Use --sse to serve over HTTP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcpserver.New(a.rag, a.cfg.RAG.TopK, version, a.log.With().Str("component", "mcp").Logger())
			if sseAddr != "" {
				sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", sseAddr)))
				a.log.Info().Str("addr", sseAddr).Msg("Serving MCP over SSE")
				return sse.Start(sseAddr)
			}

			// stdout carries the protocol; keep logs on stderr and quiet
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
			return server.ServeStdio(srv)
		},
	}
	cmd.Flags().StringVar(&sseAddr, "sse", "", "serve over SSE on this address instead of stdio")
	return cmd
}
