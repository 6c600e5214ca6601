package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/tspanneal/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// jobStatus mirrors the server's /status response.
type jobStatus struct {
	ID                  string           `json:"id"`
	State               server.JobState  `json:"state"`
	Config              server.JobConfig `json:"config"`
	CityCount           int              `json:"cityCount"`
	BestCost            float64          `json:"bestCost"`
	InitialCost         float64          `json:"initialCost"`
	Iterations          int              `json:"iterations"`
	Temperature         float64          `json:"temperature"`
	Elapsed             float64          `json:"elapsed"`
	IterationsPerSecond float64          `json:"iterationsPerSecond"`
	Error               string           `json:"error"`
}

func listJobs(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Cities: %s\n", job.Config.CitiesPath)
		fmt.Fprintf(w, "  Restarts: %d\n", job.Config.Restarts)
		if job.BestCost > 0 {
			fmt.Fprintf(w, "  Cost: %.2f -> %.2f\n", job.InitialCost, job.BestCost)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Cities: %s (%d)\n", status.Config.CitiesPath, status.CityCount)
	fmt.Fprintf(w, "  Iterations: %d\n", status.Config.Iters)
	fmt.Fprintf(w, "  Initial Temperature: %g\n", status.Config.InitialTemperature)
	fmt.Fprintf(w, "  Cooling Rate: %g\n", status.Config.CoolingRate)
	fmt.Fprintf(w, "  Restarts: %d\n", status.Config.Restarts)
	fmt.Fprintf(w, "  Seed: %d\n", status.Config.Seed)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Iteration: %d\n", status.Iterations)
	fmt.Fprintf(w, "  Temperature: %g\n", status.Temperature)
	if status.InitialCost > 0 {
		fmt.Fprintf(w, "  Initial Cost: %.2f\n", status.InitialCost)
	}
	if status.BestCost > 0 {
		fmt.Fprintf(w, "  Best Cost: %.2f\n", status.BestCost)
		if status.InitialCost > 0 {
			improvement := status.InitialCost - status.BestCost
			fmt.Fprintf(w, "  Improvement: %.2f (%.1f%%)\n", improvement, improvement/status.InitialCost*100)
		}
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.IterationsPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f iterations/sec\n", status.IterationsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
