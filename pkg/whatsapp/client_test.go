package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dpfarias/leadline-backend/pkg/config"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(config.WhatsAppConfig{BaseURL: serverURL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(config.WhatsAppConfig{}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(config.WhatsAppConfig{BaseURL: "   "}); err == nil {
		t.Fatal("expected error for blank base url")
	}
}

func TestSendDeliversMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload sendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messageId":"wamid.abc123"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Send(context.Background(), "5511999990000", "Bom dia, Maria!")

	if !result.Delivered {
		t.Fatalf("Delivered = false, error = %q", result.Error)
	}
	if result.MessageID != "wamid.abc123" {
		t.Fatalf("MessageID = %q, want wamid.abc123", result.MessageID)
	}
	if gotPath != "/message/sendText" {
		t.Fatalf("path = %q, want /message/sendText", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth = %q, want bearer token", gotAuth)
	}
	if gotPayload.Number != "5511999990000" || gotPayload.Text != "Bom dia, Maria!" {
		t.Fatalf("payload = %+v", gotPayload)
	}
}

func TestSendReportsGatewayErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"number is not on whatsapp"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Send(context.Background(), "5511999990000", "oi")

	if result.Delivered {
		t.Fatal("expected failure")
	}
	if result.Error != "number is not on whatsapp" {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestSendReportsStatusWhenBodyIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result := client.Send(context.Background(), "5511999990000", "oi")

	if result.Delivered {
		t.Fatal("expected failure")
	}
	if result.Error != "gateway returned status 502" {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestSendRejectsEmptyInputs(t *testing.T) {
	client := newTestClient(t, "http://gateway.invalid")

	if result := client.Send(context.Background(), "", "oi"); result.Delivered || result.Error == "" {
		t.Fatalf("empty phone: %+v", result)
	}
	if result := client.Send(context.Background(), "5511999990000", ""); result.Delivered || result.Error == "" {
		t.Fatalf("empty text: %+v", result)
	}
}

func TestSendSurvivesTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(t, server.URL)
	result := client.Send(context.Background(), "5511999990000", "oi")

	if result.Delivered || result.Error == "" {
		t.Fatalf("expected transport failure, got %+v", result)
	}
}
