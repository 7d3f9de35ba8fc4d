package httpkit

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_StampsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "curl/8")
	resp, err := NewClient(Options{}).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "kith/") {
		t.Errorf("User-Agent = %q, want kith/ prefix", body)
	}
	if req.Header.Get("User-Agent") != "curl/8" {
		t.Error("caller's request was modified")
	}
}

func TestNewClient_NoOverallTimeout(t *testing.T) {
	if c := NewClient(Options{HeaderTimeout: LocalHeaderTimeout}); c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", c.Timeout)
	}
}

func TestNewClient_LogsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	resp, err := NewClient(Options{Logger: logger}).Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatal(err)
	}
	Discard(resp)

	for _, want := range []string{"status=418", "path=/api/chat"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output = %q, want %s", buf.String(), want)
		}
	}
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		wantBody string
	}{
		{name: "ok", status: 200, body: "{}"},
		{name: "created", status: 201},
		{name: "unauthorized", status: 401, body: " bad key\n", wantErr: true, wantBody: "bad key"},
		{name: "truncated", status: 500, body: strings.Repeat("x", 10000), wantErr: true, wantBody: strings.Repeat("x", 4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			err := CheckResponse("ollama", resp)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Body != tt.wantBody || apiErr.Provider != "ollama" {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestDiscard_Nil(t *testing.T) {
	Discard(nil)
	Discard(&http.Response{})
}
