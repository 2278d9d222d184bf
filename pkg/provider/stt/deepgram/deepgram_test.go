package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

const sampleResponse = `{
  "metadata": {"duration": 1.5},
  "results": {"channels": [{"alternatives": [{
    "transcript": "pause before heavens",
    "confidence": 0.91,
    "words": [
      {"word": "pause", "start": 0.1, "end": 0.4, "confidence": 0.95},
      {"word": "before", "start": 0.4, "end": 0.7, "confidence": 0.9},
      {"word": "heavens", "start": 0.7, "end": 1.2, "confidence": 0.6}
    ]
  }]}]}
}`

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestBuildURL(t *testing.T) {
	p, _ := New("k")
	u, err := url.Parse(p.buildURL(stt.Options{Language: "pt-BR", Keywords: []string{"Deus", "céus"}}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("model") != "nova-3" || q.Get("language") != "pt" {
		t.Errorf("query=%v", q)
	}
	if got := q["keyterm"]; len(got) != 2 || got[1] != "céus" {
		t.Errorf("keyterm=%v", got)
	}

	p2, _ := New("k", WithModel("nova-2"))
	u2, _ := url.Parse(p2.buildURL(stt.Options{Keywords: []string{"Deus"}}))
	if u2.Query().Get("keywords") != "Deus" || u2.Query().Has("language") {
		t.Errorf("nova-2 query=%v", u2.Query())
	}
}

func TestTranscribe(t *testing.T) {
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p, _ := New("dg-key", WithBaseURL(srv.URL))
	clip := audio.Clip{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	tr, err := p.Transcribe(context.Background(), clip, stt.Options{Language: "en-IN"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if auth != "Token dg-key" || contentType != "audio/wav" {
		t.Errorf("auth=%q content-type=%q", auth, contentType)
	}
	if tr.Text != "pause before heavens" || tr.Confidence != 0.91 || tr.Duration != 1500*time.Millisecond {
		t.Errorf("transcript=%+v", tr)
	}
	if len(tr.Words) != 3 || tr.Words[2].Word != "heavens" || tr.Words[2].Start != 700*time.Millisecond {
		t.Errorf("words=%+v", tr.Words)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	clip := audio.Clip{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}
	if _, err := p.Transcribe(context.Background(), clip, stt.Options{}); err == nil {
		t.Error("expected error for 401")
	}
	if _, err := parseResponse([]byte(`{"results":{"channels":[]}}`)); err == nil {
		t.Error("expected error for empty channels")
	}
}
