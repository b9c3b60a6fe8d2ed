package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/cwbudde/templatetrack/internal/store"
	"github.com/spf13/cobra"
)

var resultsDataDir string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored tracking results",
	Long:  `List, show and delete tracking results stored by the job server.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the per-frame trace of a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var deleteResultCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a stored result",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteResult,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(deleteResultCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "./data", "Base directory for result storage")
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTIMESTAMP\tFRAMES\tMATCHED\tSIZE")
	fmt.Fprintln(w, "------\t---------\t------\t-------\t----")

	for _, info := range infos {
		jobDir := filepath.Join(resultsDataDir, "jobs", info.JobID)
		sizeStr := "unknown"
		if size, err := getDirSize(jobDir); err == nil {
			sizeStr = formatBytes(size)
		}

		displayID := info.JobID
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			displayID,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Frames,
			info.Matched,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal results: %d\n", len(infos))
	return nil
}

func runShowResult(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	reader, err := store.NewTraceReader(resultsDataDir, jobID)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FRAME\tX\tY\tSCORE\tRADIUS\tACCEPTED")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%d\t%d\t%.6f\t%d\t%v\n",
			e.Frame, e.X, e.Y, e.Score, e.Radius, e.Accepted)
	}
	w.Flush()

	return nil
}

func runDeleteResult(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	if err := resultStore.DeleteResult(jobID); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}

	fmt.Printf("Deleted result %s\n", jobID)
	return nil
}

// getDirSize returns the total size in bytes of all files under dir.
func getDirSize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats a byte count using binary units.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
