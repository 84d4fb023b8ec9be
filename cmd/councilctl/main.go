package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

var version = "dev"

// loadEnvFile reads ~/.councilhub/env (written by make start) and sets any
// key=value pairs not already present in the process environment. This lets
// councilctl work out of the box without shell profile configuration.
func loadEnvFile() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	data, err := os.ReadFile(home + "/.councilhub/env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if os.Getenv(strings.TrimSpace(k)) == "" {
			_ = os.Setenv(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
}

func main() {
	loadEnvFile()
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("councilctl %s\n", version)
	case "status":
		doStatus()
	case "health":
		doHealth()
	case "ask":
		doAsk(args)
	case "job", "jobs":
		doJobs(args)
	case "model", "models":
		doModels(args)
	case "conversation", "conversations":
		doConversations(args)
	case "events":
		doEvents()
	case "help", "--help", "-h":
		usageTo(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	usageTo(os.Stderr)
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `councilctl — CLI for the LLM Council API

Usage: councilctl <command> [arguments]

Environment:
  COUNCIL_URL      Base URL (default: http://localhost:8800)
  COUNCIL_API_KEY  X-Council-Key for protected endpoints

  ~/.councilhub/env  Auto-sourced on startup; written by make start.
                     Explicit environment variables take precedence.

Commands:
  status                      Show service info and configuration
  health                      Show per-provider health stats

  ask <query>                 Run a synchronous council deliberation
  ask --final-only <query>    Skip the peer-ranking stage
  ask --async <query>         Submit as an async job and print the job id

  jobs list [--limit N] [--status S]   List async jobs
  jobs get <id>                        Show one job with its result
  jobs cleanup [--max-age-hours N]     Remove old finished jobs

  models [provider]           List available models (optionally one provider)

  conversations list          List conversations
  conversations get <id>      Show one conversation with messages
  conversations delete <id>   Delete a conversation

  events                      Stream real-time SSE events

  version                     Show version
  help                        Show this help

Examples:
  councilctl status
  councilctl ask "What caused the Bronze Age collapse?"
  councilctl ask --async "Summarize the history of RISC"
  councilctl jobs list --status completed
  councilctl models openrouter
  councilctl events
`)
}

// --- HTTP helpers ---

func baseURL() string {
	if u := os.Getenv("COUNCIL_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8800"
}

func apiKey() string {
	return os.Getenv("COUNCIL_API_KEY")
}

func doRequest(method, path string, body io.Reader) (*http.Response, error) {
	url := baseURL() + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := apiKey(); key != "" {
		req.Header.Set("X-Council-Key", key)
	}
	client := &http.Client{Timeout: 30 * time.Minute}
	return client.Do(req)
}

// getJSON fetches path and decodes the response into out.
func getJSON(path string, out any) error {
	resp, err := doRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s (status %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// --- Commands ---

func doStatus() {
	var info map[string]any
	if err := getJSON("/api/info", &info); err != nil {
		fatal(err)
	}
	printJSON(info)
}

func doHealth() {
	var out struct {
		Providers []struct {
			Provider      string  `json:"provider"`
			State         string  `json:"state"`
			TotalRequests int64   `json:"total_requests"`
			TotalErrors   int64   `json:"total_errors"`
			AvgLatencyMs  float64 `json:"avg_latency_ms"`
			LastError     string  `json:"last_error"`
		} `json:"providers"`
	}
	if err := getJSON("/api/providers/health", &out); err != nil {
		fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATE\tREQUESTS\tERRORS\tAVG LATENCY\tLAST ERROR")
	for _, p := range out.Providers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0fms\t%s\n",
			p.Provider, p.State, p.TotalRequests, p.TotalErrors, p.AvgLatencyMs, p.LastError)
	}
	_ = w.Flush()
}

func doAsk(args []string) {
	async := false
	finalOnly := false
	var query []string
	for _, a := range args {
		switch a {
		case "--async":
			async = true
		case "--final-only":
			finalOnly = true
		default:
			query = append(query, a)
		}
	}
	if len(query) == 0 {
		fatal(fmt.Errorf("usage: councilctl ask [--async] [--final-only] <query>"))
	}

	body, _ := json.Marshal(map[string]any{
		"query":      strings.Join(query, " "),
		"final_only": finalOnly,
	})

	path := "/api/council"
	if async {
		path = "/api/council/async"
	}
	resp, err := doRequest(http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		fatal(apiError(resp))
	}

	if async {
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fatal(err)
		}
		fmt.Printf("job accepted: %v\npoll: %v\n", out["job_id"], out["poll_url"])
		return
	}

	var result struct {
		Stage3 struct {
			Model    string `json:"model"`
			Response string `json:"response"`
		} `json:"stage3"`
		Metadata struct {
			AggregateRankings []struct {
				Model       string  `json:"model"`
				AverageRank float64 `json:"average_rank"`
			} `json:"aggregate_rankings"`
		} `json:"metadata"`
		Timing struct {
			TotalMs float64 `json:"total_ms"`
		} `json:"timing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fatal(err)
	}

	if len(result.Metadata.AggregateRankings) > 0 {
		fmt.Println("Peer rankings:")
		for i, r := range result.Metadata.AggregateRankings {
			fmt.Printf("  %d. %s (avg rank %.2f)\n", i+1, r.Model, r.AverageRank)
		}
		fmt.Println()
	}
	fmt.Printf("%s\n\n[chairman: %s, %.1fs]\n",
		result.Stage3.Response, result.Stage3.Model, result.Timing.TotalMs/1000)
}

func doJobs(args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		path := "/api/council/jobs"
		var params []string
		rest := args[1:]
		for i := 0; i < len(rest); i++ {
			switch rest[i] {
			case "--limit":
				if i+1 < len(rest) {
					i++
					params = append(params, "limit="+rest[i])
				}
			case "--status":
				if i+1 < len(rest) {
					i++
					params = append(params, "status="+rest[i])
				}
			}
		}
		if len(params) > 0 {
			path += "?" + strings.Join(params, "&")
		}
		var out struct {
			Jobs []struct {
				JobID     string    `json:"job_id"`
				Status    string    `json:"status"`
				Query     string    `json:"query"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"jobs"`
		}
		if err := getJSON(path, &out); err != nil {
			fatal(err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "JOB\tSTATUS\tCREATED\tQUERY")
		for _, j := range out.Jobs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				j.JobID, j.Status, j.CreatedAt.Format(time.RFC3339), j.Query)
		}
		_ = w.Flush()
	case "get":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: councilctl jobs get <id>"))
		}
		var job map[string]any
		if err := getJSON("/api/council/jobs/"+args[1], &job); err != nil {
			fatal(err)
		}
		printJSON(job)
	case "cleanup":
		path := "/api/council/jobs/cleanup"
		if len(args) >= 3 && args[1] == "--max-age-hours" {
			path += "?max_age_hours=" + args[2]
		}
		resp, err := doRequest(http.MethodDelete, path, nil)
		if err != nil {
			fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			fatal(apiError(resp))
		}
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		fmt.Printf("removed %v jobs\n", out["removed"])
	default:
		fatal(fmt.Errorf("unknown jobs subcommand: %s", args[0]))
	}
}

func doModels(args []string) {
	path := "/api/models"
	if len(args) > 0 {
		path = "/api/models/" + args[0]
	}
	var out struct {
		Models []map[string]any `json:"models"`
		Count  int              `json:"count"`
	}
	if err := getJSON(path, &out); err != nil {
		fatal(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MODEL\tPROVIDER")
	for _, m := range out.Models {
		_, _ = fmt.Fprintf(w, "%v\t%v\n", m["id"], m["provider"])
	}
	_ = w.Flush()
	fmt.Printf("%d models\n", out.Count)
}

func doConversations(args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		var out struct {
			Conversations []struct {
				ID           string    `json:"id"`
				Title        string    `json:"title"`
				CreatedAt    time.Time `json:"created_at"`
				MessageCount int       `json:"message_count"`
			} `json:"conversations"`
		}
		if err := getJSON("/api/conversations", &out); err != nil {
			fatal(err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tCREATED")
		for _, c := range out.Conversations {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				c.ID, c.Title, c.MessageCount, c.CreatedAt.Format(time.RFC3339))
		}
		_ = w.Flush()
	case "get":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: councilctl conversations get <id>"))
		}
		var conv map[string]any
		if err := getJSON("/api/conversations/"+args[1], &conv); err != nil {
			fatal(err)
		}
		printJSON(conv)
	case "delete":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: councilctl conversations delete <id>"))
		}
		resp, err := doRequest(http.MethodDelete, "/api/conversations/"+args[1], nil)
		if err != nil {
			fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			fatal(apiError(resp))
		}
		fmt.Println("deleted")
	default:
		fatal(fmt.Errorf("unknown conversations subcommand: %s", args[0]))
	}
}

func doEvents() {
	resp, err := doRequest(http.MethodGet, "/api/events", nil)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fatal(apiError(resp))
	}

	fmt.Println("streaming events (Ctrl-C to stop)...")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			fmt.Println(line)
		}
	}
}
