package main

import (
	"fmt"

	"github.com/cwbudde/templatetrack/internal/server"
	"github.com/cwbudde/templatetrack/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP tracking-job server",
	Long: `Starts an HTTP server that accepts tracking jobs, runs them in the
background and persists results. Progress is streamed over SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resultStore, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}

		srv := server.NewServer(serveAddr, serveDataDir, resultStore)
		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for result storage")
	rootCmd.AddCommand(serveCmd)
}
