package meta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchProfile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/psid-123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "name,profile_pic" {
			t.Errorf("fields = %s", got)
		}
		if got := r.URL.Query().Get("access_token"); got != "tok" {
			t.Errorf("access_token = %s", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"name":        "Ravi Kumar",
			"profile_pic": "https://cdn.example.com/p.jpg",
		})
	}))
	defer server.Close()

	client := NewClient(nil, server.URL)
	profile := client.FetchProfile(context.Background(), "tok", "psid-123")
	if profile.Name != "Ravi Kumar" {
		t.Fatalf("name = %q", profile.Name)
	}
	if profile.ProfilePic != "https://cdn.example.com/p.jpg" {
		t.Fatalf("profile_pic = %q", profile.ProfilePic)
	}
}

func TestFetchProfileFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(nil, server.URL)
	profile := client.FetchProfile(context.Background(), "tok", "psid-404")
	if profile.Name != UnknownProfileName {
		t.Fatalf("name = %q, want %q", profile.Name, UnknownProfileName)
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(SendResult{RecipientID: "psid-1", MessageID: "mid.99"})
	}))
	defer server.Close()

	client := NewClient(nil, server.URL)
	result, err := client.SendText(context.Background(), "tok", "psid-1", "Thanks, on it")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if result.MessageID != "mid.99" {
		t.Fatalf("message_id = %q", result.MessageID)
	}

	recipient := received["recipient"].(map[string]any)
	message := received["message"].(map[string]any)
	if recipient["id"] != "psid-1" {
		t.Fatalf("recipient = %v", recipient)
	}
	if message["text"] != "Thanks, on it" {
		t.Fatalf("message = %v", message)
	}
}

func TestSendTextGraphError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid OAuth access token", "code": 190},
		})
	}))
	defer server.Close()

	client := NewClient(nil, server.URL)
	if _, err := client.SendText(context.Background(), "bad", "psid-1", "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendAttachmentPayload(t *testing.T) {
	t.Parallel()

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(SendResult{MessageID: "mid.1"})
	}))
	defer server.Close()

	client := NewClient(nil, server.URL)
	if _, err := client.SendAttachment(context.Background(), "tok", "psid-1", "image", "https://cdn.example.com/x.png"); err != nil {
		t.Fatalf("SendAttachment: %v", err)
	}
	attachment := received["message"].(map[string]any)["attachment"].(map[string]any)
	if attachment["type"] != "image" {
		t.Fatalf("type = %v", attachment["type"])
	}
	payload := attachment["payload"].(map[string]any)
	if payload["url"] != "https://cdn.example.com/x.png" || payload["is_reusable"] != true {
		t.Fatalf("payload = %v", payload)
	}
}
