// Package pipeline processes regular (non-Flow) webhook messages: dedup,
// sender guard, media analysis jobs, and flow-completion follow-ups. All
// of it runs decoupled from the HTTP response — the webhook only needs an
// acknowledgment for these message types.
package pipeline

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/danacepat/wa-flows/internal/gateway"
	"github.com/danacepat/wa-flows/internal/security"
	"github.com/danacepat/wa-flows/internal/wa"
)

// Job is one queued media-analysis task.
type Job struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"` // "image" or "document"
	MediaID   string `json:"media_id"`
	MimeType  string `json:"mime_type"`
	Filename  string `json:"filename,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// Dispatcher hands a job to the background execution context (NATS queue
// or an in-process goroutine).
type Dispatcher interface {
	Dispatch(job Job) error
}

// Messenger is the provider-client surface the pipeline uses.
type Messenger interface {
	SendText(to, text string) (*wa.SendMessageResponse, error)
	SendLong(to, text string) error
	MediaURL(mediaID string) (*wa.Media, error)
	Download(url string) ([]byte, error)
}

// Storer uploads media to object storage.
type Storer interface {
	Put(name, contentType string, data []byte) (string, error)
}

// Describer summarizes a stored file.
type Describer interface {
	Describe(fileURL, mimeType, filename string) (string, error)
}

// Scorer looks up a credit score.
type Scorer interface {
	Lookup(nationalID string) (*CreditScore, error)
}

// CreditScore mirrors the scoring collaborator's result.
type CreditScore struct {
	Value int
	Band  string
}

// Recorder persists dedup marks and flow-completion audit rows.
type Recorder interface {
	MarkProcessed(messageID, sender string) (bool, error)
	RecordCompletion(flowToken, flowID, action string) error
}

// Pipeline wires the regular-message path.
type Pipeline struct {
	Messenger  Messenger
	Storage    Storer
	Analysis   Describer
	Credit     Scorer
	Store      Recorder
	Guard      *security.Guard
	Gateway    *gateway.Notifier
	Dispatcher Dispatcher
}

// apology is sent when a media job fails; the failure itself is only logged.
const apology = "Maaf, kami tidak dapat memproses berkas Anda saat ini. Silakan coba lagi nanti."

// HandleMessage processes one inbound message. It is called off the HTTP
// request path and must never panic the process; every failure is logged
// and, where useful, answered with a generic reply.
func (p *Pipeline) HandleMessage(msg wa.Message, contactName string) {
	if msg.ID != "" && p.Store != nil {
		dup, err := p.Store.MarkProcessed(msg.ID, msg.From)
		if err != nil {
			log.Printf("pipeline: dedup check failed for %s: %v", msg.ID, err)
		} else if dup {
			log.Printf("pipeline: skipping duplicate message %s", msg.ID)
			return
		}
	}

	if p.Guard != nil {
		switch p.Guard.Check(msg.From) {
		case security.Deny:
			log.Printf("pipeline: denied sender %s", msg.From)
			p.reply(msg.From, p.Guard.DenyMessage())
			return
		case security.RateLimited:
			log.Printf("pipeline: rate-limited sender %s", msg.From)
			return
		}
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return
		}
		p.Gateway.Notify(gateway.Event{
			Type: gateway.EventInboundMessage,
			From: msg.From,
			Name: contactName,
			Text: msg.Text.Body,
		})

	case "image":
		if msg.Image == nil {
			return
		}
		p.dispatchMedia(msg, contactName, "image", msg.Image.ID, msg.Image.MimeType, "", msg.Image.Caption)

	case "document":
		if msg.Document == nil {
			return
		}
		p.dispatchMedia(msg, contactName, "document", msg.Document.ID, msg.Document.MimeType,
			msg.Document.Filename, msg.Document.Caption)

	case "interactive":
		p.handleFlowReply(msg, contactName)

	default:
		log.Printf("pipeline: unsupported message type %q from %s (id=%s)", msg.Type, msg.From, msg.ID)
		p.reply(msg.From, fmt.Sprintf("Maaf, pesan %s belum didukung. Silakan kirim teks atau dokumen.", msg.Type))
	}
}

func (p *Pipeline) dispatchMedia(msg wa.Message, name, kind, mediaID, mimeType, filename, caption string) {
	job := Job{
		ID:        uuid.NewString(),
		MessageID: msg.ID,
		From:      msg.From,
		Name:      name,
		Kind:      kind,
		MediaID:   mediaID,
		MimeType:  mimeType,
		Filename:  filename,
		Caption:   caption,
	}

	if err := p.Dispatcher.Dispatch(job); err != nil {
		log.Printf("pipeline: dispatch job %s failed: %v", job.ID, err)
		p.reply(job.From, apology)
	}
}

// Process runs one media-analysis job: resolve the media URL, download,
// store durably, summarize, and reply. Collaborator failures are
// non-fatal; the sender gets a generic apology.
func (p *Pipeline) Process(job Job) {
	log.Printf("pipeline: job %s (%s from %s)", job.ID, job.Kind, job.From)

	if p.Storage == nil || p.Analysis == nil {
		p.fail(job, fmt.Errorf("media collaborators not configured"))
		return
	}

	media, err := p.Messenger.MediaURL(job.MediaID)
	if err != nil {
		p.fail(job, fmt.Errorf("resolve media url: %w", err))
		return
	}

	data, err := p.Messenger.Download(media.URL)
	if err != nil {
		p.fail(job, fmt.Errorf("download media: %w", err))
		return
	}

	name := job.Filename
	if name == "" {
		name = job.MediaID
	}
	storedURL, err := p.Storage.Put(fmt.Sprintf("%s/%s", job.From, name), job.MimeType, data)
	if err != nil {
		p.fail(job, fmt.Errorf("store object: %w", err))
		return
	}

	summary, err := p.Analysis.Describe(storedURL, job.MimeType, job.Filename)
	if err != nil {
		p.fail(job, fmt.Errorf("analyze: %w", err))
		return
	}

	if err := p.Messenger.SendLong(job.From, summary); err != nil {
		log.Printf("pipeline: job %s: reply failed: %v", job.ID, err)
		return
	}

	p.Gateway.Notify(gateway.Event{
		Type: gateway.EventMediaAnalyzed,
		From: job.From,
		Name: job.Name,
		Text: job.Kind + ": " + name,
	})
}

func (p *Pipeline) fail(job Job, err error) {
	log.Printf("pipeline: job %s failed: %v", job.ID, err)
	p.reply(job.From, apology)
}

// handleFlowReply handles the regular-webhook echo of a completed Flow:
// records the completion, runs the credit-score follow-up when the form
// carried a national ID, and confirms to the sender. This send is fully
// independent of the encrypted Flow response already delivered.
func (p *Pipeline) handleFlowReply(msg wa.Message, contactName string) {
	if msg.Interactive == nil || msg.Interactive.NFMReply == nil {
		return
	}

	var form struct {
		FlowToken  string `json:"flow_token"`
		NationalID string `json:"national_id"`
	}
	if err := json.Unmarshal([]byte(msg.Interactive.NFMReply.ResponseJSON), &form); err != nil {
		log.Printf("pipeline: bad flow reply from %s: %v", msg.From, err)
		return
	}

	if p.Store != nil {
		if err := p.Store.RecordCompletion(form.FlowToken, msg.Interactive.NFMReply.Name, "nfm_reply"); err != nil {
			log.Printf("pipeline: record completion: %v", err)
		}
	}

	var lines []string
	lines = append(lines, "Terima kasih! Pengajuan Anda telah kami terima.")

	if form.NationalID != "" && p.Credit != nil {
		if score, err := p.Credit.Lookup(form.NationalID); err != nil {
			log.Printf("pipeline: credit lookup failed for %s: %v", msg.From, err)
		} else {
			lines = append(lines, fmt.Sprintf("Skor kredit Anda: %d (%s).", score.Value, score.Band))
		}
	}

	p.reply(msg.From, strings.Join(lines, "\n"))

	p.Gateway.Notify(gateway.Event{
		Type:      gateway.EventFlowCompleted,
		From:      msg.From,
		Name:      contactName,
		FlowToken: form.FlowToken,
	})
}

func (p *Pipeline) reply(to, text string) {
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}
	if _, err := p.Messenger.SendText(to, text); err != nil {
		log.Printf("pipeline: send to %s failed: %v", to, err)
	}
}

// GoDispatcher runs jobs on an in-process goroutine. Used when no queue
// is configured.
type GoDispatcher struct {
	Pipeline *Pipeline
}

// Dispatch starts the job in the background and returns immediately.
func (d *GoDispatcher) Dispatch(job Job) error {
	go d.Pipeline.Process(job)
	return nil
}
