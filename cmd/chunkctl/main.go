// Command chunkctl is the operator CLI for the chunk consistency service.
// It talks to the admin HTTP API and prints the JSON reports.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	addr    string
	timeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "chunkctl",
		Short:         "Operate the chunk consistency service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8084", "base URL of the consistency service")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(auditCmd(), repairCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <document-id>",
		Short: "Compare the relational and vector stores for one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return call(http.MethodGet, fmt.Sprintf("/api/v1/documents/%d/consistency", id))
		},
	}
}

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <document-id>",
		Short: "Repair drift for one document (delete orphans, flag missing vectors)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return call(http.MethodPost, fmt.Sprintf("/api/v1/documents/%d/repair", id))
		},
	}
}

func sweepCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Audit all documents in one lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/v1/consistency/sweep"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return call(http.MethodPost, path)
		},
	}
	cmd.Flags().StringVar(&status, "status", "completed", "document status to sweep (processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum documents to check (0 uses the server default)")
	return cmd
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("document id must be a positive integer, got %q", arg)
	}
	return id, nil
}

func call(method, path string) error {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequest(method, addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, string(body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
