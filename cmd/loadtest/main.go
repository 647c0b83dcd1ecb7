// Command loadtest replays a question set against a running navigator and
// reports status codes, confidence levels and latency.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var defaultQuestions = []string{
	"What does ICO say about documenting lawful basis?",
	"How should we record processing activities?",
	"Tell me about consent",
	"When must a personal data breach be reported?",
	"What are the six lawful bases?",
	"How do data subject access requests work?",
	"What is a DPIA?",
	"Is this lawful?",
	"Should we use legitimate interests?",
	"favourite football team",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	UseLLM      bool
	Questions   []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	confidence  map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]int64),
		confidence:  make(map[string]int64),
	}
}

// Record counts one request. level is the confidence of a decoded
// response, or "" when the body was not a navigator response.
func (s *Stats) Record(d time.Duration, status int, level string, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if level != "" {
		s.confidence[level]++
	}
}

func main() {
	var cfg Config
	var questionsFile string

	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Replay questions against a running navigator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Questions = defaultQuestions
			if questionsFile != "" {
				qs, err := readQuestions(questionsFile)
				if err != nil {
					return err
				}
				cfg.Questions = qs
			}
			if cfg.Concurrency < 1 {
				return fmt.Errorf("concurrency must be >= 1, got %d", cfg.Concurrency)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Navigator Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
			fmt.Fprintf(out, "Questions:   %d unique\n", len(cfg.Questions))
			fmt.Fprintf(out, "LLM:         %t\n\n", cfg.UseLLM)

			stats := runLoadTest(cmd.Context(), cfg)
			printReport(out, stats, cfg.Duration)
			if stats.totalRequests.Load() == 0 {
				return fmt.Errorf("no requests completed, is the service running?")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "Base URL of the navigator service")
	f.IntVar(&cfg.Concurrency, "concurrency", 4, "Number of concurrent workers")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	f.BoolVar(&cfg.UseLLM, "use-llm", false, "Ask for the LLM post-processor on every request")
	f.StringVar(&questionsFile, "questions", "", "File with one question per line")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening questions file: %w", err)
	}
	defer f.Close()

	var qs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		qs = append(qs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading questions file: %w", err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("questions file %s is empty", path)
	}
	return qs, nil
}

func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/ask"
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				q := cfg.Questions[i%len(cfg.Questions)]
				start := time.Now()
				status, level, err := ask(ctx, client, endpoint, q, cfg.UseLLM)
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), status, level, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func ask(ctx context.Context, client *http.Client, endpoint, question string, useLLM bool) (int, string, error) {
	body, err := json.Marshal(map[string]any{"question": question, "use_llm": useLLM})
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var decoded struct {
		Confidence string `json:"confidence"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	if json.Unmarshal(data, &decoded) != nil {
		decoded.Confidence = ""
	}
	return resp.StatusCode, decoded.Confidence, nil
}

func printReport(w io.Writer, stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errorCount := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errorCount)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errorCount)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	latencies := append([]time.Duration(nil), stats.latencies...)
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Confidence ===")
	for _, level := range []string{"high", "medium", "low", "very_low"} {
		fmt.Fprintf(w, "  %-9s %d\n", level+":", stats.confidence[level])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
