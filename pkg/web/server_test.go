package web

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/internal/observe"
	"github.com/teslashibe/tonelink/pkg/batch"
	"github.com/teslashibe/tonelink/pkg/codec"
	"github.com/teslashibe/tonelink/pkg/pcm"
	"github.com/teslashibe/tonelink/pkg/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	mp, handler, err := observe.NewPrometheusProvider(reg)
	if err != nil {
		t.Fatalf("NewPrometheusProvider: %v", err)
	}
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return NewServer(
		Config{Addr: "127.0.0.1:0", OutputDir: t.TempDir(), Concurrency: 2},
		codec.NewRegistry(),
		WithLogger(log.Discard()),
		WithMetrics(m),
		WithMetricsHandler(handler),
	)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	out, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, "GET", "/api/health", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestPresets(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, "GET", "/api/presets", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var presets []PresetInfo
	if err := json.Unmarshal(body, &presets); err != nil {
		t.Fatal(err)
	}
	if len(presets) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(presets))
	}
	if presets[0].Name != codec.NameLiteral || presets[0].FrameBytes != 7 || presets[0].Samples != 123480 {
		t.Errorf("unexpected literal preset %+v", presets[0])
	}
	if presets[1].Name != codec.NameTelemetry || presets[1].Samples != 847320 || presets[1].AirtimeMs != 19200 {
		t.Errorf("unexpected telemetry preset %+v", presets[1])
	}
}

func TestEncode_JSON(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, "POST", "/api/encode", EncodeRequest{Preset: "a", Values: []float64{1.3, 0.8}})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var data protocol.EncodedData
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatal(err)
	}
	if data.Frame != "d5aa014d00cd0180" || data.Samples != 847320 {
		t.Errorf("unexpected encode result %+v", data)
	}
	if data.ID == "" {
		t.Error("expected an id")
	}
}

func TestEncode_WAV(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, "POST", "/api/encode?format=wav", EncodeRequest{Preset: "literal", Payload: 0x56DD599D})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %q", ct)
	}
	if got := resp.Header.Get("X-Tonelink-Frame"); got != "aa56dd599d0f40" {
		t.Errorf("unexpected frame header %q", got)
	}
	if len(body) != 44+2*123480 {
		t.Fatalf("expected %d bytes, got %d", 44+2*123480, len(body))
	}
	if string(body[:4]) != "RIFF" || binary.LittleEndian.Uint32(body[40:44]) != 2*123480 {
		t.Errorf("bad container header % X", body[:44])
	}

	res, _ := codec.EncodeRaw(codec.Literal(), 0x56DD599D)
	if !slices.Equal(pcm.BytesToSamples(body[44:]), res.Samples) {
		t.Error("served samples differ from a local encode")
	}
}

func TestEncode_Errors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		req    EncodeRequest
		status int
	}{
		{"unknown preset", EncodeRequest{Preset: "sonar"}, 404},
		{"missing values", EncodeRequest{Preset: "telemetry"}, 422},
		{"wrong value count", EncodeRequest{Preset: "telemetry", Values: []float64{1, 2, 3}}, 422},
		{"payload too wide", EncodeRequest{Preset: "literal", Payload: 1 << 40}, 422},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, s, "POST", "/api/encode", tt.req)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if !strings.Contains(string(body), `"error"`) {
				t.Errorf("expected error body, got %s", body)
			}
		})
	}

	req := httptest.NewRequest("POST", "/api/encode", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestDecode(t *testing.T) {
	s := newTestServer(t)

	resp, body := doJSON(t, s, "POST", "/api/decode", DecodeRequest{Preset: "telemetry", Frame: "D5AA014D00CD0180"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var d protocol.DecodedData
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatal(err)
	}
	if !d.ChecksumOK || d.Data != 0x014D00CD || len(d.Values) != 2 || d.Values[0] != 333.0/256 {
		t.Errorf("unexpected decode %+v", d)
	}

	resp, body = doJSON(t, s, "POST", "/api/decode", DecodeRequest{Preset: "telemetry", Frame: "D5AA014D00CD0181"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	_ = json.Unmarshal(body, &d)
	if d.ChecksumOK || d.Expected != 0x0180 {
		t.Errorf("expected checksum mismatch, got %+v", d)
	}

	if resp, _ := doJSON(t, s, "POST", "/api/decode", DecodeRequest{Preset: "telemetry", Frame: "D5AA"}); resp.StatusCode != 422 {
		t.Errorf("expected 422 for truncated frame, got %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, s, "POST", "/api/decode", DecodeRequest{Preset: "telemetry", Frame: "zz"}); resp.StatusCode != 400 {
		t.Errorf("expected 400 for bad hex, got %d", resp.StatusCode)
	}
}

func TestFrames(t *testing.T) {
	s := newTestServer(t)
	stream := "00" + "aa56dd599d0f40" + "ff" + "aa000000010001"
	resp, body := doJSON(t, s, "POST", "/api/frames", DecodeRequest{Preset: "b", Frame: stream})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var data protocol.ScannedData
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Frames) != 2 || data.Frames[0].Data != 0x56DD599D || data.Frames[1].Data != 1 {
		t.Errorf("unexpected frames %+v", data.Frames)
	}
}

func TestBatch(t *testing.T) {
	s := newTestServer(t)
	req := BatchRequest{Preset: "literal", Items: []batch.Item{{Payload: 1}, {Payload: 2}, {Payload: 3}}}
	resp, body := doJSON(t, s, "POST", "/api/batch", req)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var out []batch.Output
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(out))
	}
	for _, o := range out {
		if _, err := os.Stat(o.Path); err != nil {
			t.Errorf("missing file %s: %v", o.Path, err)
		}
		if filepath.Dir(filepath.Dir(o.Path)) != s.cfg.OutputDir {
			t.Errorf("file %s outside output dir", o.Path)
		}
	}

	if resp, _ := doJSON(t, s, "POST", "/api/batch", BatchRequest{Preset: "literal"}); resp.StatusCode != 422 {
		t.Errorf("expected 422 for empty batch, got %d", resp.StatusCode)
	}
}

func TestRecentEventsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/encode", EncodeRequest{Preset: "literal", Payload: 7})
	doJSON(t, s, "POST", "/api/decode", DecodeRequest{Preset: "literal", Frame: "00"})

	_, body := doJSON(t, s, "GET", "/api/events", nil)
	var events []protocol.Message
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Type != protocol.TypeEncoded || events[1].Type != protocol.TypeError {
		t.Errorf("unexpected events %+v", events)
	}

	_, body = doJSON(t, s, "GET", "/metrics", nil)
	for _, want := range []string{"tonelink_frames_encoded", "tonelink_http_request_duration", `path="/api/encode"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %s in scrape", want)
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	addr := ln.Addr().String()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Events().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	raw, _ := json.Marshal(DecodeRequest{Preset: "literal", Frame: "aa56dd599d0f40"})
	resp, err := http.Post("http://"+addr+"/api/decode", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msgBytes, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.ParseMessage(msgBytes)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != protocol.TypeDecoded {
		t.Fatalf("expected decoded event, got %s", msg.Type)
	}
	d, err := msg.GetDecodedData()
	if err != nil {
		t.Fatal(err)
	}
	if d.Data != 0x56DD599D || !d.ChecksumOK {
		t.Errorf("unexpected event %+v", d)
	}
}

func TestEncode_PCM(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, "POST", "/api/encode?format=pcm", EncodeRequest{Preset: "literal", Payload: 0x56DD599D})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get(HeaderSampleRate); got != "44100" {
		t.Errorf("expected sample rate 44100, got %q", got)
	}
	if got := resp.Header.Get(HeaderFrame); got != "aa56dd599d0f40" {
		t.Errorf("unexpected frame header %q", got)
	}
	if len(body) != 2*123480 {
		t.Fatalf("expected %d bytes, got %d", 2*123480, len(body))
	}

	res, _ := codec.EncodeRaw(codec.Literal(), 0x56DD599D)
	if !slices.Equal(pcm.BytesToSamples(body), res.Samples) {
		t.Error("served samples differ from a local encode")
	}
}

func TestWebSocketEvents_WAVIsBroadcast(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	addr := ln.Addr().String()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Events().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	raw, _ := json.Marshal(EncodeRequest{Preset: "literal", Payload: 0x56DD599D})
	resp, err := http.Post("http://"+addr+"/api/encode?format=wav", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	served, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var gotEvent, gotAudio bool
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !gotEvent || !gotAudio {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		switch kind {
		case websocket.BinaryMessage:
			if !bytes.Equal(data, served) {
				t.Errorf("broadcast audio differs from response: %d vs %d bytes", len(data), len(served))
			}
			gotAudio = true
		case websocket.TextMessage:
			msg, err := protocol.ParseMessage(data)
			if err != nil || msg.Type != protocol.TypeEncoded {
				t.Errorf("expected encoded event, got %v %v", msg, err)
			}
			gotEvent = true
		}
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	resp, _ := doJSON(t, s, "GET", "/ws/events", nil)
	if resp.StatusCode != 426 {
		t.Errorf("expected 426, got %d", resp.StatusCode)
	}
}
