package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"transcript-insights-go/internal/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestTranscribe_PublishPollDownload(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Status":"ok","Data":{"MediaId":"m1","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mediaId") != "m1" {
			t.Errorf("unexpected media id %q", r.URL.RawQuery)
		}
		if atomic.AddInt32(&polls, 1) < 2 {
			fmt.Fprint(w, `{"Code":200,"Data":{"Status":"Processing"}}`)
			return
		}
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionTextURL":"%s/file"}}`, srv.URL)
	})
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"utterances":[{"speaker":"A","start":0,"end":4.7,"text":"hello there"}],
			"words":[{"text":"hello","start":0,"end":0.5},{"text":"there","start":0.6,"end":4.7}]}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{URL: srv.URL, PollInterval: time.Millisecond, PollTimeout: time.Second, Retry: fastRetry()})
	tr, err := c.Transcribe(context.Background(), "https://audio/1.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(tr.Utterances) != 1 || tr.Utterances[0].EndSeconds != 4 || tr.Utterances[0].SpeakerID != "A" {
		t.Errorf("utterances = %+v", tr.Utterances)
	}
	if len(tr.Words) != 2 {
		t.Errorf("words = %+v", tr.Words)
	}
}

func TestTranscribe_PlainTextDownload(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","TranscriptionURL":"%s/file"}}`, srv.URL)
	})
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "00:00 Host: hi\n00:05 Guest: hello")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	tr, err := New(Config{URL: srv.URL, Retry: fastRetry()}).Transcribe(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text == "" || len(tr.Utterances) != 0 {
		t.Errorf("expected raw text passthrough, got %+v", tr)
	}
}

func TestTranscribe_PollDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Data":{"MediaId":"m1","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Data":{"Status":"Queued"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{URL: srv.URL, PollInterval: time.Millisecond, PollTimeout: 20 * time.Millisecond, Retry: fastRetry()})
	_, err := c.Transcribe(context.Background(), "a")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
}

func TestTranscribe_Mock(t *testing.T) {
	tr, err := New(Config{Mock: true}).Transcribe(context.Background(), "ignored")
	if err != nil || len(tr.Utterances) == 0 || len(tr.Words) == 0 {
		t.Fatalf("mock transcript = %+v, %v", tr, err)
	}
}
