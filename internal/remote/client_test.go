package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

func TestGetDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/check-device-status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("hardwareId") != "hw 1" {
			t.Errorf("unexpected hardwareId %q", r.URL.Query().Get("hardwareId"))
		}
		if r.Header.Get("User-Agent") != "agent/test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"status":"stolen"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/api/", WithUserAgent("agent/test"))
	var resp types.StatusResponse
	err := c.Get(context.Background(), "check-device-status", url.Values{"hardwareId": {"hw 1"}}, &resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "stolen" {
		t.Errorf("expected stolen, got %s", resp.Status)
	}
}

func TestPostSendsJSONAndBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		var ack types.CommandAck
		if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if ack.CommandID != "c1" {
			t.Errorf("expected c1, got %s", ack.CommandID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/device-command-executed",
		Body:   types.CommandAck{CommandID: "c1", Result: types.Result{Success: true}},
		Bearer: "tok",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNon2xxIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewClient(server.URL).Post(context.Background(), "upload-photo", map[string]string{}, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", statusErr.Code)
	}
	if !errors.Is(err, types.ErrNetworkFailure) {
		t.Error("expected StatusError to match ErrNetworkFailure")
	}
}

func TestTransportErrorIsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	err := NewClient(addr).Get(context.Background(), "device-commands", nil, nil)
	if !errors.Is(err, types.ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", err)
	}
}

func TestContextBoundsRequest(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewClient(server.URL).Get(ctx, "check-device-status", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":`))
	}))
	defer server.Close()

	var resp types.StatusResponse
	if err := NewClient(server.URL).Get(context.Background(), "x", nil, &resp); err == nil {
		t.Fatal("expected decode error")
	}
}
