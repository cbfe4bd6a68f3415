package pipeline

import (
	"strings"
	"sync"
	"testing"

	"github.com/danacepat/wa-flows/internal/wa"
)

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []string
	long  []string
	media map[string]string // media ID → URL
	files map[string][]byte // URL → content
}

func (f *fakeMessenger) SendText(to, text string) (*wa.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+": "+text)
	return &wa.SendMessageResponse{}, nil
}

func (f *fakeMessenger) SendLong(to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.long = append(f.long, to+": "+text)
	return nil
}

func (f *fakeMessenger) MediaURL(mediaID string) (*wa.Media, error) {
	return &wa.Media{ID: mediaID, URL: f.media[mediaID], MimeType: "image/jpeg"}, nil
}

func (f *fakeMessenger) Download(url string) ([]byte, error) {
	return f.files[url], nil
}

type fakeStorer struct{ puts []string }

func (f *fakeStorer) Put(name, contentType string, data []byte) (string, error) {
	f.puts = append(f.puts, name)
	return "https://store.example/" + name, nil
}

type fakeDescriber struct{ summary string }

func (f *fakeDescriber) Describe(fileURL, mimeType, filename string) (string, error) {
	return f.summary, nil
}

type fakeScorer struct{ score *CreditScore }

func (f *fakeScorer) Lookup(nationalID string) (*CreditScore, error) {
	return f.score, nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	seen        map[string]bool
	completions []string
}

func (f *fakeRecorder) MarkProcessed(messageID, sender string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	dup := f.seen[messageID]
	f.seen[messageID] = true
	return dup, nil
}

func (f *fakeRecorder) RecordCompletion(flowToken, flowID, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, flowToken)
	return nil
}

// syncDispatcher runs jobs inline so tests observe results immediately.
type syncDispatcher struct{ p *Pipeline }

func (d *syncDispatcher) Dispatch(job Job) error {
	d.p.Process(job)
	return nil
}

func testPipeline() (*Pipeline, *fakeMessenger, *fakeRecorder) {
	m := &fakeMessenger{
		media: map[string]string{"media-1": "https://cdn.example/media-1"},
		files: map[string][]byte{"https://cdn.example/media-1": []byte("jpegbytes")},
	}
	rec := &fakeRecorder{}
	p := &Pipeline{
		Messenger: m,
		Storage:   &fakeStorer{},
		Analysis:  &fakeDescriber{summary: "Dokumen berisi slip gaji."},
		Credit:    &fakeScorer{score: &CreditScore{Value: 720, Band: "baik"}},
		Store:     rec,
	}
	p.Dispatcher = &syncDispatcher{p: p}
	return p, m, rec
}

func TestDuplicateMessageSkipped(t *testing.T) {
	p, m, _ := testPipeline()

	msg := wa.Message{
		ID:    "wamid.dup",
		From:  "628111111111",
		Type:  "image",
		Image: &wa.MediaContent{ID: "media-1", MimeType: "image/jpeg"},
	}

	p.HandleMessage(msg, "Budi")
	p.HandleMessage(msg, "Budi")

	if len(m.long) != 1 {
		t.Fatalf("analysis replies = %d, want 1 (duplicate must be skipped)", len(m.long))
	}
}

func TestMediaJobAnalyzesAndReplies(t *testing.T) {
	p, m, _ := testPipeline()

	p.HandleMessage(wa.Message{
		ID:    "wamid.img",
		From:  "628111111111",
		Type:  "image",
		Image: &wa.MediaContent{ID: "media-1", MimeType: "image/jpeg"},
	}, "Budi")

	if len(m.long) != 1 {
		t.Fatalf("long replies = %d, want 1", len(m.long))
	}
	if !strings.Contains(m.long[0], "slip gaji") {
		t.Fatalf("reply = %q, want the analysis summary", m.long[0])
	}
	if !strings.HasPrefix(m.long[0], "628111111111: ") {
		t.Fatalf("reply target wrong: %q", m.long[0])
	}
}

func TestFlowReplyRecordsCompletionAndScores(t *testing.T) {
	p, m, rec := testPipeline()

	p.HandleMessage(wa.Message{
		ID:   "wamid.flow",
		From: "628111111111",
		Type: "interactive",
		Interactive: &wa.InteractiveContent{
			Type: "nfm_reply",
			NFMReply: &wa.NFMReply{
				Name:         "loan_application",
				ResponseJSON: `{"flow_token":"tok-9","national_id":"3173051234560001"}`,
			},
		},
	}, "Budi")

	if len(rec.completions) != 1 || rec.completions[0] != "tok-9" {
		t.Fatalf("completions = %v, want [tok-9]", rec.completions)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent = %v, want one confirmation", m.sent)
	}
	if !strings.Contains(m.sent[0], "720") {
		t.Fatalf("confirmation %q missing credit score", m.sent[0])
	}
	if !strings.HasPrefix(m.sent[0], "+628111111111: ") {
		t.Fatalf("confirmation sent to %q, want +-prefixed number", m.sent[0])
	}
}

func TestUnsupportedTypeGetsNotice(t *testing.T) {
	p, m, _ := testPipeline()

	p.HandleMessage(wa.Message{
		ID:   "wamid.audio",
		From: "628111111111",
		Type: "sticker",
	}, "Budi")

	if len(m.sent) != 1 {
		t.Fatalf("sent = %v, want one notice", m.sent)
	}
	if !strings.Contains(m.sent[0], "sticker") {
		t.Fatalf("notice %q does not name the type", m.sent[0])
	}
}

func TestTextWithoutGatewayIsQuiet(t *testing.T) {
	p, m, _ := testPipeline()

	p.HandleMessage(wa.Message{
		ID:   "wamid.text",
		From: "628111111111",
		Type: "text",
		Text: &wa.TextContent{Body: "halo"},
	}, "Budi")

	if len(m.sent) != 0 || len(m.long) != 0 {
		t.Fatalf("text message triggered sends: %v %v", m.sent, m.long)
	}
}
