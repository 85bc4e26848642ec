// extract-batch submits every document in a directory to a running
// extractd instance, waits for the jobs to settle and reports the
// routing outcome per file. With --out it also downloads the
// manual-review queue as an XLSX workbook.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/freightflow/extractd/constants"
)

var (
	serverURL string
	dir       string
	out       string
	schemaArg string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "extract-batch",
		Short: "Submit a directory of freight documents for extraction",
		RunE:  runBatch,
	}
	root.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "extractd base URL")
	root.Flags().StringVar(&dir, "dir", "", "directory of documents to submit (required)")
	root.Flags().StringVar(&out, "out", "", "write the manual-review queue to this XLSX file")
	root.Flags().StringVar(&schemaArg, "schema", "transport_order", "extraction schema")
	root.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-job wait budget")
	_ = root.MarkFlagRequired("dir")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

var documentExts = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

type jobStatus struct {
	ID       string                    `json:"id"`
	State    constants.JobState        `json:"state"`
	Decision constants.RoutingDecision `json:"decision"`
	Reason   constants.FailureReason   `json:"failure_reason"`
}

func runBatch(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := cmd.Context()
	client := &http.Client{Timeout: 30 * time.Second}
	base := strings.TrimRight(serverURL, "/")

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := documentExts[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan directory: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no documents found under %s", dir)
	}
	logger.Info("batch.start", "files", len(files), "server", base)

	jobs := make(map[string]string, len(files)) // job id -> file
	for _, path := range files {
		id, err := submit(ctx, client, base, path)
		if err != nil {
			logger.Error("batch.submit_failed", "file", path, "error", err)
			continue
		}
		jobs[id] = path
		logger.Info("batch.submitted", "file", filepath.Base(path), "job_id", id)
	}

	automated, manual, failed := 0, 0, 0
	start := time.Now()
	for id, path := range jobs {
		status, err := waitTerminal(ctx, client, base, id, timeout)
		if err != nil {
			logger.Error("batch.wait_failed", "file", path, "job_id", id, "error", err)
			failed++
			continue
		}
		switch {
		case status.State == constants.JobStateFailed:
			logger.Warn("batch.job_failed", "file", filepath.Base(path), "reason", status.Reason)
			failed++
		case status.Decision == constants.RouteAutomated:
			automated++
		default:
			manual++
		}
	}

	if out != "" {
		if err := downloadReviewQueue(ctx, client, base, out); err != nil {
			return fmt.Errorf("download review queue: %w", err)
		}
		logger.Info("batch.review_exported", "path", out)
	}

	fmt.Printf("Batch complete in %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("- Submitted: %d\n", len(jobs))
	fmt.Printf("- Automated: %d\n", automated)
	fmt.Printf("- Manual review: %d\n", manual)
	fmt.Printf("- Failed: %d\n", failed)
	return nil
}

func submit(ctx context.Context, client *http.Client, base, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/jobs?schema=%s&filename=%s", base, schemaArg, filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", documentExts[strings.ToLower(filepath.Ext(path))])

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var submitted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", err
	}
	return submitted.JobID, nil
}

func waitTerminal(ctx context.Context, client *http.Client, base, id string, budget time.Duration) (*jobStatus, error) {
	deadline := time.Now().Add(budget)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/jobs/"+id, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var status jobStatus
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if status.State.IsTerminal() {
			return &status, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s still %s after %s", id, status.State, budget)
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func downloadReviewQueue(ctx context.Context, client *http.Client, base, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/reviews/export", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return nil
}
