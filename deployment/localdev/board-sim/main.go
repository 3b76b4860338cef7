// board-sim drives a local veritas-engine with synthetic validation traffic
// and feedback so the effectiveness loop has data to work with.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

func main() {
	var (
		baseURL  string
		boards   int
		interval time.Duration
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8090", "veritas-engine base URL")
	flag.IntVar(&boards, "boards", 25, "number of synthetic boards to validate")
	flag.DurationVar(&interval, "interval", 200*time.Millisecond, "delay between boards")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < boards; i++ {
		board := syntheticBoard(rng)
		if err := postJSON(client, baseURL+"/api/v1/validate", map[string]any{"input": board}); err != nil {
			log.Printf("validate board %d: %v", i, err)
		}

		// Occasionally rate a rule, mostly positively for clean boards.
		if rng.Float64() < 0.4 {
			positive := rng.Float64() < 0.7
			payload := map[string]any{"positive": positive}
			if !positive {
				payload["text"] = "flagged a board that looked fine"
			}
			if err := postJSON(client, baseURL+"/api/v1/rules/min-trace-clearance/feedback", payload); err != nil {
				log.Printf("feedback board %d: %v", i, err)
			}
		}

		time.Sleep(interval)
	}

	log.Printf("validated %d synthetic boards against %s", boards, baseURL)
}

// syntheticBoard produces a flattened board summary with a mix of clean and
// marginal values so some rules fail.
func syntheticBoard(rng *rand.Rand) map[string]any {
	board := map[string]any{
		"board": map[string]any{
			"min_clearance_mil": 4 + rng.Float64()*6,
			"ground_pour":       true,
		},
		"audio": map[string]any{
			"max_trace_impedance": 30 + rng.Float64()*40,
		},
		"power": map[string]any{
			"worst_decoupling_distance_mm": 2 + rng.Float64()*6,
		},
		"thermal": map[string]any{
			"relief_deviation": rng.Float64() * 0.4,
		},
	}
	if rng.Float64() < 0.1 {
		delete(board["board"].(map[string]any), "ground_pour")
	}
	return board
}

func postJSON(client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return nil
}
