// failovertest is a tool to verify failover and circuit breaker behavior
// in the router by simulating provider failures.
//
// Run the router with a mockprovider (see scripts/mockprovider) as its
// primary, then:
//
//	go run ./scripts/failovertest -router http://localhost:8080 -provider-port 11434
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		routerURL    = flag.String("router", "http://localhost:8080", "Failover router URL")
		providerPort = flag.Int("provider-port", 11434, "Local provider port to kill for testing")
		requests     = flag.Int("requests", 20, "Requests per phase")
		skipKill     = flag.Bool("skip-kill", false, "Skip the kill provider phase")
	)
	flag.Parse()

	client := &http.Client{Timeout: 60 * time.Second}

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║         FAILOVER & CIRCUIT BREAKER TEST                        ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: Verify normal operation
	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Operation ━━━" + colorReset)
	fmt.Println("Sending requests to verify providers are healthy...")

	providerHits := make(map[string]int)
	for i := 0; i < *requests; i++ {
		resp, provider, err := sendRoute(client, *routerURL)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode >= 500 {
			fmt.Printf(colorRed+"  Request %d: Provider=%s Status=%d\n"+colorReset, i+1, provider, resp.StatusCode)
		} else {
			providerHits[provider]++
		}
		resp.Body.Close()
	}

	fmt.Println("\n  Provider distribution:")
	for provider, count := range providerHits {
		fmt.Printf("    %s → %d requests\n", provider, count)
	}
	if len(providerHits) == 0 {
		fmt.Println(colorRed + "  ✗ No providers responded! Is the router running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  ✓ Normal operation verified" + colorReset)
	fmt.Println()

	// PHASE 2: Kill the primary provider and verify failover
	if !*skipKill {
		fmt.Println(colorBlue + "━━━ PHASE 2: Provider Failure & Failover ━━━" + colorReset)
		fmt.Printf("Killing provider on port %d...\n", *providerPort)

		if err := killProvider(*providerPort); err != nil {
			fmt.Printf(colorYellow+"  Warning: Could not kill provider: %v\n"+colorReset, err)
		} else {
			fmt.Printf(colorGreen+"  ✓ Provider on port %d killed\n"+colorReset, *providerPort)
		}

		time.Sleep(500 * time.Millisecond)

		fmt.Println("\n  Sending requests (should cascade to the next provider)...")
		successCount := 0
		for i := 0; i < *requests; i++ {
			resp, provider, err := sendRoute(client, *routerURL)
			if err != nil {
				fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
				continue
			}
			if resp.StatusCode < 500 {
				successCount++
				providerHits[provider]++
			} else {
				fmt.Printf(colorYellow+"  Request %d: Provider=%s Status=%d\n"+colorReset, i+1, provider, resp.StatusCode)
			}
			resp.Body.Close()
		}

		fmt.Printf("\n  Results: %d/%d successful\n", successCount, *requests)
		if successCount == *requests {
			fmt.Println(colorGreen + "  ✓ All requests succeeded (failover working!)" + colorReset)
		} else {
			fmt.Println(colorYellow + "  ⚠ Some requests failed (check router logs for breaker activity)" + colorReset)
		}
		fmt.Println()
	}

	// PHASE 3: Check breaker states
	fmt.Println(colorBlue + "━━━ PHASE 3: Circuit Breaker Status ━━━" + colorReset)
	fmt.Println("Checking /v1/providers endpoint...")

	statuses, err := getProviders(client, *routerURL+"/v1/providers")
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch provider statuses: %v\n"+colorReset, err)
	} else {
		fmt.Println("\n  Provider health status:")
		for _, ps := range statuses {
			name, _ := ps["name"].(string)
			state, _ := ps["state"].(string)
			colored := colorGreen + state + colorReset
			if state != "CLOSED" {
				colored = colorRed + state + colorReset
			}
			fmt.Printf("    %s → %s (consecutive failures: %v)\n", name, colored, ps["consecutive_failures"])
		}
	}
	fmt.Println()

	// PHASE 4: Metrics snapshot
	fmt.Println(colorBlue + "━━━ PHASE 4: Metrics Snapshot ━━━" + colorReset)
	fmt.Println("Checking /metrics endpoint...")

	metrics, err := getMetrics(client, *routerURL+"/metrics")
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch metrics: %v\n"+colorReset, err)
	} else {
		fmt.Printf("  Total attempts: %v\n", metrics["total_attempts"])
		if q, ok := metrics["queue"].(map[string]interface{}); ok {
			fmt.Printf("  Queue: queued=%v dequeued=%v expired=%v\n", q["queued"], q["dequeued"], q["expired"])
		}
	}
	fmt.Println()

	// Summary
	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║                    TEST COMPLETE                               ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()
	fmt.Println("Key behaviors verified:")
	fmt.Println("  1. Normal routing to the preferred provider")
	fmt.Println("  2. Cascade to fallback providers on failure")
	fmt.Println("  3. Circuit breaker state via /v1/providers")
	fmt.Println("  4. Metrics snapshot via /metrics")
	fmt.Println()
	fmt.Println("Check router logs for detailed breaker and queue activity.")
}

func sendRoute(client *http.Client, url string) (*http.Response, string, error) {
	payload := []byte(`{"prompt": "say hello", "max_tokens": 16}`)
	req, err := http.NewRequest("POST", url+"/v1/route", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}

	provider := resp.Header.Get("X-Served-By")
	return resp, provider, nil
}

func killProvider(port int) error {
	cmd := exec.Command("lsof", "-ti", fmt.Sprintf(":%d", port))
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("no process found on port %d", port)
	}

	pid := strings.TrimSpace(string(output))
	if pid == "" {
		return fmt.Errorf("no process found on port %d", port)
	}

	killCmd := exec.Command("kill", pid)
	return killCmd.Run()
}

func getProviders(client *http.Client, url string) ([]map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var statuses []map[string]interface{}
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, err
	}

	return statuses, nil
}

func getMetrics(client *http.Client, url string) (map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metrics map[string]interface{}
	if err := json.Unmarshal(body, &metrics); err != nil {
		return nil, err
	}

	return metrics, nil
}
