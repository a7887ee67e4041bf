package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/supaspectre/internal/coordinator"
	"github.com/ppiankov/supaspectre/internal/detection"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/postgrest"
	"github.com/ppiankov/supaspectre/internal/storage"
)

const testProject = "abcdefghijklmnopqrst"

func anonKey(t *testing.T) string {
	t.Helper()
	enc := base64.RawURLEncoding
	body, err := json.Marshal(map[string]any{"role": "anon", "ref": testProject})
	if err != nil {
		t.Fatal(err)
	}
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc.EncodeToString(body) + ".c2lnbmF0dXJlLXNpZ25hdHVyZQ"
}

func newTestServer(t *testing.T, consent bool, opts ...coordinator.Option) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemory()
	coord := coordinator.New(ctx, detection.New(kv), kv, opts...)
	if consent {
		if err := coord.SetConsent(ctx, models.Consent{Accepted: true}); err != nil {
			t.Fatal(err)
		}
	}
	ts := httptest.NewServer(NewServer(coord, WithVersion("1.2.3")).Handler())
	t.Cleanup(ts.Close)
	return ts, coord
}

func post(t *testing.T, ts *httptest.Server, msg models.Message) (int, models.Response) {
	t.Helper()
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatal(err)
	}
	return postRaw(t, ts, string(data))
}

func postRaw(t *testing.T, ts *httptest.Server, body string) (int, models.Response) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out models.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		OK        bool   `json:"ok"`
		Version   string `json:"version"`
		Consented bool   `json:"consented"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || body.Version != "1.2.3" || body.Consented {
		t.Errorf("health = %+v", body)
	}
	if resp.Header.Get("X-Content-Type-Options") != securityHeaderNoSniff {
		t.Error("security headers missing")
	}
}

func TestMessagesRequireConsent(t *testing.T) {
	ts, _ := newTestServer(t, false)

	status, resp := post(t, ts, models.SupabaseRequest{TabID: 1, URL: "https://" + testProject + ".supabase.co/rest/v1/x", APIKey: anonKey(t)})
	if status != http.StatusForbidden || resp.Reason != coordinator.ConsentReason {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}

	status, resp = post(t, ts, models.Consent{Accepted: true, Version: "1.0"})
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("consent: status=%d resp=%+v", status, resp)
	}

	status, resp = post(t, ts, models.SupabaseRequest{TabID: 1, URL: "https://" + testProject + ".supabase.co/rest/v1/x", APIKey: anonKey(t)})
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("after consent: status=%d resp=%+v", status, resp)
	}
}

func TestMessagesRejectMalformed(t *testing.T) {
	ts, _ := newTestServer(t, true)
	for _, body := range []string{`not json`, `{"type":"nope"}`, `{"type":"tab_removed","payload":{"tabId":-1}}`} {
		status, resp := postRaw(t, ts, body)
		if status != http.StatusBadRequest || resp.OK || resp.Reason == "" {
			t.Errorf("%s: status=%d resp=%+v", body, status, resp)
		}
	}
}

func TestConnectionEndpointRedactsKey(t *testing.T) {
	ts, _ := newTestServer(t, true)
	key := anonKey(t)
	if _, resp := post(t, ts, models.SupabaseRequest{TabID: 2, URL: "https://" + testProject + ".supabase.co/rest/v1/x", APIKey: key}); !resp.OK {
		t.Fatalf("detect: %+v", resp)
	}

	resp, err := http.Get(ts.URL + "/v1/connection")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), key) {
		t.Fatal("connection endpoint returned the full key")
	}
	var out struct {
		OK   bool           `json:"ok"`
		Data connectionView `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.ProjectID != testProject || out.Data.BaseURL != "https://"+testProject+".supabase.co/rest/v1" {
		t.Errorf("connection view = %+v", out.Data)
	}
	if !out.Data.AutoConnect {
		t.Error("fresh detector connection should auto-connect")
	}
}

func TestReportEndpoints(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`{"paths":{"/notes":{}}}`))
		case "/notes":
			w.Header().Set("Content-Range", "0-0/2")
			_, _ = w.Write([]byte(`[{"id":1,"body":"hi"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(rest.Close)

	ts, _ := newTestServer(t, true, coordinator.WithClientFactory(func(conn *models.Connection) *postgrest.Client {
		return postgrest.New(conn, postgrest.WithBaseURL(rest.URL))
	}))

	if _, resp := post(t, ts, models.ApplyConnection{Connection: models.Connection{ProjectID: testProject, APIKey: anonKey(t)}}); !resp.OK {
		t.Fatalf("apply: %+v", resp)
	}
	_, resp := post(t, ts, models.CreateReport{})
	if !resp.OK || resp.ID == "" {
		t.Fatalf("create report: %+v", resp)
	}

	list, err := http.Get(ts.URL + "/v1/reports")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = list.Body.Close() }()
	var index struct {
		Data []reportListItem `json:"data"`
	}
	if err := json.NewDecoder(list.Body).Decode(&index); err != nil {
		t.Fatal(err)
	}
	if len(index.Data) != 1 || index.Data[0].ID != resp.ID || index.Data[0].Accessible != 1 {
		t.Fatalf("report index = %+v", index.Data)
	}

	tests := []struct {
		format      string
		wantStatus  int
		contentType string
		fragment    string
	}{
		{format: "", wantStatus: http.StatusOK, contentType: "application/json", fragment: `"projectId": "` + testProject + `"`},
		{format: "text", wantStatus: http.StatusOK, contentType: "text/plain; charset=utf-8", fragment: "SupaSpectre Security Report"},
		{format: "sarif", wantStatus: http.StatusOK, contentType: "application/sarif+json", fragment: `"version": "1.2.3"`},
		{format: "csv", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			r, err := http.Get(ts.URL + "/v1/reports/" + resp.ID + "?format=" + tt.format)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = r.Body.Close() }()
			if r.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", r.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := r.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), tt.fragment) {
				t.Errorf("body missing %q:\n%s", tt.fragment, body)
			}
		})
	}

	missing, err := http.Get(ts.URL + "/v1/reports/report_missing")
	if err != nil {
		t.Fatal(err)
	}
	_ = missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing report status = %d", missing.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	ts, coord := newTestServer(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// the comment line is written after subscribing
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	coord.CloseOverlay(4)

	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(line)
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if eventLine != "event: close_overlay" {
		t.Errorf("event line = %q", eventLine)
	}
	var e coordinator.Event
	if err := json.Unmarshal([]byte(dataLine), &e); err != nil {
		t.Fatal(err)
	}
	if e.TabID != 4 || e.Type != coordinator.EventCloseOverlay {
		t.Errorf("event = %+v", e)
	}
}
