// Diagnostic tool for the resilience layer: polls the health endpoint and
// prints per-service breaker and store status.
//
// Usage:
//
//	go run scripts/diagnose_health.go [-url http://localhost:8080/healthz] [-watch 5s] [-json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"
)

// HealthReport mirrors the health endpoint's response document.
type HealthReport struct {
	Status    string                  `json:"status"`
	Timestamp string                  `json:"timestamp"`
	Version   string                  `json:"version"`
	Services  map[string]ServiceEntry `json:"services"`
}

// ServiceEntry is one service's health as reported by the endpoint.
type ServiceEntry struct {
	Status        string    `json:"status"`
	State         string    `json:"state"`
	LastError     string    `json:"last_error,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LatencyMS     int64     `json:"latency_ms"`
}

func main() {
	url := flag.String("url", "http://localhost:8080/healthz", "health endpoint URL")
	watch := flag.Duration("watch", 0, "re-poll interval; 0 polls once")
	asJSON := flag.Bool("json", false, "print the raw JSON document")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	for {
		report, code, err := fetch(client, *url)
		if err != nil {
			log.Fatalf("fetch %s: %v", *url, err)
		}

		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(report, code)
		}

		if *watch <= 0 {
			if report.Status == "unavailable" {
				os.Exit(1)
			}
			return
		}
		time.Sleep(*watch)
	}
}

func fetch(client *http.Client, url string) (*HealthReport, int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &report, resp.StatusCode, nil
}

func printReport(report *HealthReport, code int) {
	fmt.Printf("%s  overall=%s  http=%d  version=%s\n",
		time.Now().Format(time.RFC3339), report.Status, code, report.Version)

	names := make([]string, 0, len(report.Services))
	for name := range report.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := report.Services[name]
		line := fmt.Sprintf("  %-18s %-12s state=%-11s latency=%dms", name, svc.Status, svc.State, svc.LatencyMS)
		if svc.LastError != "" {
			line += "  error=" + svc.LastError
		}
		fmt.Println(line)
	}
}
