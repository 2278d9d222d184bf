package coqui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

func TestNew_RequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestSynthesize_StripsTags(t *testing.T) {
	t.Parallel()
	queries := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsPath {
			t.Errorf("path=%q, want %q", r.URL.Path, ttsPath)
		}
		queries <- r.URL.Query()
		_, _ = w.Write(audio.EncodeWAV(audio.Clip{PCM: make([]byte, 64), SampleRate: 22050, Channels: 1}))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	out, err := p.Synthesize(context.Background(), tts.Request{
		Text:     "[reverent] In the [pause] beginning",
		VoiceID:  "p225",
		Language: "en-IN",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	query := <-queries
	if got := query["text"]; len(got) != 1 || got[0] != "In the beginning" {
		t.Errorf("text=%q, want tags removed", got)
	}
	if got := query["speaker_id"]; len(got) != 1 || got[0] != "p225" {
		t.Errorf("speaker_id=%q", got)
	}
	if got := query["language_id"]; len(got) != 1 || got[0] != "en" {
		t.Errorf("language_id=%q, want en", got)
	}
	if out.ContentType != "audio/wav" || !audio.IsWAV(out.Data) {
		t.Errorf("audio content type %q, wav=%v", out.ContentType, audio.IsWAV(out.Data))
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithLanguage("hi"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "a"}); err == nil {
		t.Error("expected error for server failure")
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "[pause]"}); err == nil {
		t.Error("expected error for tag-only text")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		body  string
		first string
		count int
	}{
		{"multi speaker", `{"model_name":"vctk","speakers":["p226","p225"]}`, "p225", 2},
		{"single speaker", `{"model_name":"tacotron2"}`, "tacotron2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			voices, err := p.ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != tt.count || voices[0].Name != tt.first {
				t.Errorf("voices=%+v", voices)
			}
		})
	}
}

func TestSynthesize_FixedLanguage(t *testing.T) {
	t.Parallel()

	langs := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		langs <- r.URL.Query().Get("language_id")
		_, _ = w.Write(audio.EncodeWAV(audio.Clip{PCM: make([]byte, 32), SampleRate: 22050, Channels: 1}))
	}))
	defer srv.Close()

	p, _ := New(srv.URL+"/", WithLanguage("hi"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "आदि में", Language: "en-IN"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if lang := <-langs; lang != "hi" {
		t.Errorf("language_id = %q, want the configured hi", lang)
	}
}

func TestSynthesize_RejectsNonWAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not audio</html>"))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "In the beginning"}); err == nil {
		t.Error("expected error for a body that is not WAV")
	}
}
