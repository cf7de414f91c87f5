package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPWebhookSender_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender()
	result := sender.Send(context.Background(), WebhookRequest{
		URL:       server.URL,
		Secret:    "test-secret",
		Timeout:   5 * time.Second,
		AttemptID: "attempt-1",
		Payload: WebhookPayload{
			WorkOrderID:  "wo-1",
			RunID:        "run-1",
			ProgramID:    "prog-1",
			ScheduledFor: "2024-06-03T09:00:00Z",
			GeneratedAt:  "2024-06-03T09:05:00Z",
		},
	})

	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	if result.Duration <= 0 {
		t.Error("duration should be positive")
	}
}

func TestHTTPWebhookSender_RequestHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender()
	sender.Send(context.Background(), WebhookRequest{
		URL:       server.URL,
		Secret:    "my-secret",
		Timeout:   5 * time.Second,
		AttemptID: "attempt-123",
		Payload: WebhookPayload{
			WorkOrderID:  "wo-1",
			RunID:        "run-456",
			ProgramID:    "prog-1",
			ScheduledFor: "2024-06-03T09:00:00Z",
			GeneratedAt:  "2024-06-03T09:05:00Z",
		},
	})

	// Method
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}

	// Content-Type
	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	// X-WorkPro-Event-ID
	if id := gotHeaders.Get("X-WorkPro-Event-ID"); id != "attempt-123" {
		t.Errorf("X-WorkPro-Event-ID = %q, want attempt-123", id)
	}

	// X-WorkPro-Run-ID
	if id := gotHeaders.Get("X-WorkPro-Run-ID"); id != "run-456" {
		t.Errorf("X-WorkPro-Run-ID = %q, want run-456", id)
	}

	// X-WorkPro-Signature should be non-empty
	if sig := gotHeaders.Get("X-WorkPro-Signature"); sig == "" {
		t.Error("X-WorkPro-Signature should not be empty")
	}
}

func TestHTTPWebhookSender_PayloadBody(t *testing.T) {
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender()
	sender.Send(context.Background(), WebhookRequest{
		URL:     server.URL,
		Secret:  "secret",
		Timeout: 5 * time.Second,
		Payload: WebhookPayload{
			WorkOrderID:  "wo-abc",
			RunID:        "run-def",
			ProgramID:    "prog-ghi",
			TriggerID:    "trig-jkl",
			ScheduledFor: "2024-06-03T09:00:00Z",
			GeneratedAt:  "2024-06-03T09:05:00Z",
		},
	})

	var payload WebhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	if payload.WorkOrderID != "wo-abc" {
		t.Errorf("WorkOrderID = %q, want wo-abc", payload.WorkOrderID)
	}
	if payload.RunID != "run-def" {
		t.Errorf("RunID = %q, want run-def", payload.RunID)
	}
	if payload.ScheduledFor != "2024-06-03T09:00:00Z" {
		t.Errorf("ScheduledFor = %q, want 2024-06-03T09:00:00Z", payload.ScheduledFor)
	}
}

func TestHTTPWebhookSender_SignatureCorrect(t *testing.T) {
	var gotSignature string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-WorkPro-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := "my-webhook-secret"

	sender := NewHTTPWebhookSender()
	sender.Send(context.Background(), WebhookRequest{
		URL:     server.URL,
		Secret:  secret,
		Timeout: 5 * time.Second,
		Payload: WebhookPayload{
			WorkOrderID: "wo-1",
			RunID:       "run-1",
		},
	})

	// Verify signature manually
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if gotSignature != expectedSig {
		t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", gotSignature, expectedSig)
	}
}

func TestHTTPWebhookSender_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender()
	result := sender.Send(context.Background(), WebhookRequest{
		URL:     server.URL,
		Secret:  "secret",
		Timeout: 5 * time.Second,
		Payload: WebhookPayload{WorkOrderID: "w", RunID: "r"},
	})

	if result.Error != nil {
		t.Errorf("server error should not set Error field, got: %v", result.Error)
	}
	if result.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", result.StatusCode)
	}
}

func TestHTTPWebhookSender_ConnectionError(t *testing.T) {
	sender := NewHTTPWebhookSender()
	result := sender.Send(context.Background(), WebhookRequest{
		URL:     "http://localhost:1", // unlikely to be listening
		Secret:  "secret",
		Timeout: 1 * time.Second,
		Payload: WebhookPayload{WorkOrderID: "w", RunID: "r"},
	})

	if result.Error == nil {
		t.Error("expected connection error, got nil")
	}
}

func TestVerifySignature_Valid(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"work_order_id":"w1","run_id":"r1"}`)

	sig := computeSignature(secret, body)

	if !VerifySignature(secret, body, sig) {
		t.Error("VerifySignature should return true for valid signature")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"work_order_id":"w1"}`)
	sig := computeSignature("correct-secret", body)

	if VerifySignature("wrong-secret", body, sig) {
		t.Error("VerifySignature should return false for wrong secret")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "test-secret"
	originalBody := []byte(`{"work_order_id":"w1"}`)
	sig := computeSignature(secret, originalBody)

	tamperedBody := []byte(`{"work_order_id":"w2"}`)
	if VerifySignature(secret, tamperedBody, sig) {
		t.Error("VerifySignature should return false for tampered body")
	}
}

func TestComputeSignature_Deterministic(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"work_order_id":"w1","run_id":"r1"}`)

	sig1 := computeSignature(secret, body)
	sig2 := computeSignature(secret, body)

	if sig1 != sig2 {
		t.Errorf("computeSignature should be deterministic: %s != %s", sig1, sig2)
	}

	if _, err := hex.DecodeString(sig1); err != nil {
		t.Errorf("signature should be valid hex: %v", err)
	}

	// SHA256 produces 32 bytes = 64 hex chars
	if len(sig1) != 64 {
		t.Errorf("signature length should be 64 hex chars, got %d", len(sig1))
	}
}
