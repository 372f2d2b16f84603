package jellyfin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_DefaultsAndConfig(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost:8096/", APIKey: "token"})

	if client.baseURL != "http://localhost:8096" {
		t.Fatalf("baseURL = %q, want %q", client.baseURL, "http://localhost:8096")
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want %v", client.httpClient.Timeout, 30*time.Second)
	}
	if !strings.Contains(client.authHeader(), `Client="embress"`) {
		t.Fatalf("unexpected auth header %q", client.authHeader())
	}
}

func TestGetSystemInfo_MakesExpectedHTTPRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SystemInfo{ServerName: "Jellyfin", Version: "10.9.0", ID: "server-1"})
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, APIKey: "secret-key", Timeout: 5 * time.Second})
	info, err := client.GetSystemInfo(context.Background())
	if err != nil {
		t.Fatalf("GetSystemInfo() error = %v", err)
	}

	if gotMethod != http.MethodGet {
		t.Fatalf("method = %s, want GET", gotMethod)
	}
	if gotPath != "/System/Info" {
		t.Fatalf("path = %s, want /System/Info", gotPath)
	}
	if !strings.Contains(gotAuth, `Token="secret-key"`) {
		t.Fatalf("expected auth header to include API token, got %q", gotAuth)
	}
	if info.ServerName != "Jellyfin" {
		t.Fatalf("unexpected response: %+v", info)
	}
}

func TestRefreshLibrary_Posts(t *testing.T) {
	var gotMethod, gotPath string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, APIKey: "secret-key"})
	if err := client.RefreshLibrary(context.Background()); err != nil {
		t.Fatalf("RefreshLibrary() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/Library/Refresh" {
		t.Fatalf("got %s %s, want POST /Library/Refresh", gotMethod, gotPath)
	}
}

func TestGetSystemInfo_InvalidURLAndHTTPError(t *testing.T) {
	badClient := NewClient(Config{URL: "://bad-url", APIKey: "secret-key"})
	if _, err := badClient.GetSystemInfo(context.Background()); err == nil || !strings.Contains(err.Error(), "invalid base URL") {
		t.Fatalf("expected invalid base URL error, got %v", err)
	}

	errorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer errorServer.Close()

	client := NewClient(Config{URL: errorServer.URL, APIKey: "secret-key"})
	err := client.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "API error (status 502): boom") {
		t.Fatalf("expected API status error, got %v", err)
	}
}
