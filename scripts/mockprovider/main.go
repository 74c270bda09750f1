// Mockprovider is an OpenAI-compatible test server used for failover testing.
// It serves /v1/chat/completions and /v1/models so it can stand in for a
// local model server (ollama, vllm) behind the router.
//
// Usage:
//
//	go run ./scripts/mockprovider -port 11434 -model llama3 -fail-rate 0.0 -latency 50ms
//
// Set -fail-rate to make a fraction of completions return 500, which is
// enough to trip the router's circuit breaker and watch failover happen.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	var (
		port     = flag.Int("port", 11434, "Port to listen on")
		model    = flag.String("model", "llama3", "Model name to report")
		failRate = flag.Float64("fail-rate", 0.0, "Fraction of completions that return 500")
		latency  = flag.Duration("latency", 50*time.Millisecond, "Artificial response latency")
	)
	flag.Parse()

	http.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		time.Sleep(*latency)

		if rand.Float64() < *failRate {
			log.Printf("completion FAILED (injected) model=%s", *model)
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}

		prompt := ""
		if len(req.Messages) > 0 {
			prompt = req.Messages[len(req.Messages)-1].Content
		}
		log.Printf("completion ok model=%s prompt_len=%d", *model, len(prompt))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-" + uuid.NewString(),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   *model,
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": fmt.Sprintf("mock completion from %s", *model),
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     len(prompt) / 4,
				"completion_tokens": 8,
				"total_tokens":      len(prompt)/4 + 8,
			},
		})
	})

	http.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"id": *model, "object": "model", "owned_by": "mockprovider"},
			},
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock provider listening on %s model=%s fail-rate=%.2f", addr, *model, *failRate)
	log.Fatal(http.ListenAndServe(addr, nil))
}
