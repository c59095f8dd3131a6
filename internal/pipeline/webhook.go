package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// webhookTimeout bounds the run-end notification POST.
const webhookTimeout = 10 * time.Second

// webhookPayload is the JSON body of the run-end notification.
type webhookPayload struct {
	Pipeline   string  `json:"pipeline"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	DurationS  float64 `json:"duration_s"`
}

// sendWebhook POSTs the run summary to url. Best-effort: every failure
// is swallowed and never affects the run's result.
func sendWebhook(url string, payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return
	}
	resp.Body.Close()
}
