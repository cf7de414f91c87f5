// webhook-receiver is a test sink for generation webhooks. It records
// every delivery, verifies signatures when WEBHOOK_SECRET is set, and
// exposes what it saw over /stats.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type request struct {
	Timestamp      string `json:"timestamp"`
	EventID        string `json:"event_id"`
	RunID          string `json:"run_id"`
	SignatureValid *bool  `json:"signature_valid,omitempty"`
	Body           string `json:"body"`
}

type stats struct {
	Count             int64     `json:"count"`
	InvalidSignatures int64     `json:"invalid_signatures"`
	LastRequests      []request `json:"last_requests"`
	Since             string    `json:"since"`
}

var (
	mu                sync.Mutex
	count             int64
	invalidSignatures int64
	lastRequests      []request
	since             time.Time
	maxStored         = 50

	secret string
)

func main() {
	since = time.Now().UTC()
	secret = os.Getenv("WEBHOOK_SECRET")

	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/hook", hookHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		invalidSignatures = 0
		lastRequests = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	if secret == "" {
		log.Println("webhook-receiver: WEBHOOK_SECRET not set; signatures will not be verified")
	}
	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	req := request{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventID:   r.Header.Get("X-WorkPro-Event-ID"),
		RunID:     r.Header.Get("X-WorkPro-Run-ID"),
		Body:      string(body),
	}

	if secret != "" {
		valid := verifySignature(body, r.Header.Get("X-WorkPro-Signature"))
		req.SignatureValid = &valid
	}

	mu.Lock()
	count++
	if req.SignatureValid != nil && !*req.SignatureValid {
		invalidSignatures++
	}
	lastRequests = append(lastRequests, req)
	if len(lastRequests) > maxStored {
		lastRequests = lastRequests[len(lastRequests)-maxStored:]
	}
	current := count
	mu.Unlock()

	if req.SignatureValid != nil && !*req.SignatureValid {
		log.Printf("hook received #%d: INVALID SIGNATURE (event=%s)", current, req.EventID)
	} else {
		log.Printf("hook received #%d: event=%s run=%s", current, req.EventID, req.RunID)
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:             count,
		InvalidSignatures: invalidSignatures,
		LastRequests:      lastRequests,
		Since:             since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
