package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/nodes"
	"github.com/soochol/autoflow/internal/xjson"
)

type recordingRegistrar struct {
	types []string
}

func (r *recordingRegistrar) Register(e ports.IntegrationExecutor) {
	r.types = append(r.types, e.Type())
}

func TestRegisterDefaults(t *testing.T) {
	r := &recordingRegistrar{}
	RegisterDefaults(r, Options{})
	want := []string{TypeHTTP, TypeEmail, TypeDatabase, TypeChatMessage, TypeSpreadsheet, TypeFeed}
	if len(r.types) != len(want) {
		t.Fatalf("registered %v, want %v", r.types, want)
	}
	for i := range want {
		if r.types[i] != want[i] {
			t.Errorf("type[%d]: got %q, want %q", i, r.types[i], want[i])
		}
	}
}

func TestEmailIntegration(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	e := &EmailIntegration{
		Settings: SMTPSettings{Host: "mail.local", From: "bot@example.com"},
		sendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		},
	}
	out, err := e.Execute(context.Background(), map[string]any{
		"to":      "a@example.com, b@example.com",
		"subject": "Hi",
		"body":    "hello",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.local:587" {
		t.Errorf("addr: got %q", gotAddr)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 2 {
		t.Errorf("from/to: got %q %v", gotFrom, gotTo)
	}
	if !strings.Contains(string(gotMsg), "Subject: Hi") {
		t.Errorf("message missing subject: %s", gotMsg)
	}
	if out["sent"] != true {
		t.Errorf("sent: got %v", out["sent"])
	}
}

func TestEmailIntegration_NotConfigured(t *testing.T) {
	e := &EmailIntegration{}
	if _, err := e.Execute(context.Background(), map[string]any{"to": "a@b.c", "subject": "x"}, nil); err == nil {
		t.Fatal("expected error without smtp host")
	}
}

func TestDatabaseIntegration_NotConfigured(t *testing.T) {
	d := &DatabaseIntegration{}
	if _, err := d.Execute(context.Background(), map[string]any{"query": "SELECT 1"}, nil); err == nil {
		t.Fatal("expected error without database")
	}
}

func TestDatabaseIntegration_QueryPlaceholdersRejected(t *testing.T) {
	reg := nodes.NewRegistry()
	reg.Register(&DatabaseIntegration{})
	d := nodes.NewDispatcher(reg)
	input := map[string]any{"email": "x' OR '1'='1"}

	spliced := &autoflow.Node{NodeID: "db", Kind: autoflow.NodeKindAction, Config: map[string]any{
		"actionType": TypeDatabase,
		"query":      "SELECT * FROM users WHERE email = '{{email}}'",
	}}
	_, err := d.Execute(context.Background(), spliced, input)
	if !autoflow.IsConfigError(err) || !strings.Contains(err.Error(), "query") {
		t.Fatalf("expected config error naming query, got %v", err)
	}

	// Bound parameters still resolve; this one only fails for lack of a database.
	bound := &autoflow.Node{NodeID: "db", Kind: autoflow.NodeKindAction, Config: map[string]any{
		"actionType": TypeDatabase,
		"query":      "SELECT * FROM users WHERE email = $1",
		"params":     []any{"{{email}}"},
	}}
	_, err = d.Execute(context.Background(), bound, input)
	if err == nil || autoflow.IsConfigError(err) || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected to reach the integration, got %v", err)
	}
}

func TestReturnsRows(t *testing.T) {
	tests := map[string]bool{
		"SELECT 1":                                   true,
		"with x as (select 1) select * from x":       true,
		"INSERT INTO t (a) VALUES ($1)":              false,
		"INSERT INTO t (a) VALUES ($1) RETURNING id": true,
		"DELETE FROM t":                              false,
	}
	for q, want := range tests {
		if got := returnsRows(q); got != want {
			t.Errorf("returnsRows(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestChatMessageIntegration(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := xjson.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := &ChatMessageIntegration{}
	out, err := c.Execute(context.Background(), map[string]any{
		"webhookUrl": srv.URL,
		"message":    "deploy done",
		"channel":    "#ops",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if payload["text"] != "deploy done" || payload["channel"] != "#ops" {
		t.Errorf("payload: got %v", payload)
	}
	if out["sent"] != true {
		t.Errorf("sent: got %v", out["sent"])
	}
}

func TestChatMessageIntegration_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &ChatMessageIntegration{}
	if _, err := c.Execute(context.Background(), map[string]any{"webhookUrl": srv.URL, "message": "x"}, nil); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestChatMessageIntegration_Telegram(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := xjson.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := &ChatMessageIntegration{TelegramAPI: srv.URL}
	_, err := c.Execute(context.Background(), map[string]any{
		"provider":  "telegram",
		"botToken":  "123:abc",
		"chatId":    "-100",
		"message":   "*build* green",
		"parseMode": "Markdown",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path: got %q", gotPath)
	}
	if payload["chat_id"] != "-100" || payload["text"] != "*build* green" || payload["parse_mode"] != "Markdown" {
		t.Errorf("payload: got %v", payload)
	}
}

func TestChatMessageIntegration_ConfigErrors(t *testing.T) {
	c := &ChatMessageIntegration{}
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"slack without url", map[string]any{"message": "x"}},
		{"telegram without token", map[string]any{"provider": "telegram", "chatId": "1", "message": "x"}},
		{"unknown provider", map[string]any{"provider": "pager", "message": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Execute(context.Background(), tt.cfg, nil); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSpreadsheetIntegration_AppendsRows(t *testing.T) {
	dir := t.TempDir()
	s := &SpreadsheetIntegration{Dir: dir}
	cfg := map[string]any{"path": "reports/orders.xlsx", "sheet": "Orders", "values": []any{"A-1", 42}}

	out, err := s.Execute(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["row"] != 1 {
		t.Errorf("first row: got %v", out["row"])
	}
	cfg["values"] = []any{"A-2", 7}
	out, err = s.Execute(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["row"] != 2 {
		t.Errorf("second row: got %v", out["row"])
	}

	f, err := excelize.OpenFile(filepath.Join(dir, "reports", "orders.xlsx"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("Orders")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "A-2" || rows[1][1] != "7" {
		t.Errorf("rows: got %v", rows)
	}
}

func TestSpreadsheetIntegration_PathStaysInDir(t *testing.T) {
	s := &SpreadsheetIntegration{Dir: "/data/sheets"}
	got, err := s.resolvePath("../../etc/x.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/data/sheets/etc/x.xlsx" {
		t.Errorf("resolvePath: got %q", got)
	}
	if _, err := s.resolvePath("notes.txt"); err == nil {
		t.Error("expected error for non-xlsx path")
	}
}

const testRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>News</title>
<item><title>One</title><link>http://x/1</link><pubDate>Fri, 02 Jan 2026 15:04:05 GMT</pubDate></item>
<item><title>Two</title><link>http://x/2</link><pubDate>Sat, 03 Jan 2026 15:04:05 GMT</pubDate></item>
<item><title>Three</title><link>http://x/3</link></item>
</channel></rss>`

func TestFeedIntegration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	f := &FeedIntegration{}
	out, err := f.Execute(context.Background(), map[string]any{"url": srv.URL, "maxItems": 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["title"] != "News" {
		t.Errorf("title: got %v", out["title"])
	}
	if out["itemCount"] != 2 {
		t.Errorf("itemCount: got %v", out["itemCount"])
	}

	out, err = f.Execute(context.Background(), map[string]any{"url": srv.URL, "sinceDate": "2026-01-03T00:00:00Z"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	items := out["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["title"] != "Two" {
		t.Errorf("since filter: got %v", items)
	}
}
