// Package webhook is the HTTP boundary: platform verification, signature
// checking, and dispatch between encrypted Flow exchanges and regular
// message events.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danacepat/wa-flows/internal/flow"
	"github.com/danacepat/wa-flows/internal/flowcrypto"
	"github.com/danacepat/wa-flows/internal/pipeline"
	"github.com/danacepat/wa-flows/internal/wa"
)

// Server receives Meta-format WhatsApp webhook events and routes them:
// encrypted Flow payloads run the synchronous decrypt→route→encrypt
// pipeline inside the request; everything else is acknowledged and
// processed in the background.
type Server struct {
	addr        string
	verifyToken string
	appSecret   string
	exchange    *flow.Exchange
	pipeline    *pipeline.Pipeline
	srv         *http.Server
}

// NewServer creates a webhook server.
//   - addr: listen address (e.g. ":18750")
//   - verifyToken: shared secret for the GET verification handshake
//   - appSecret: optional HMAC-SHA256 secret for validating POST payloads
func NewServer(addr, verifyToken, appSecret string, ex *flow.Exchange, p *pipeline.Pipeline) *Server {
	return &Server{
		addr:        addr,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		exchange:    ex,
		pipeline:    p,
	}
}

// Start begins listening for webhook requests. It blocks until the server
// is stopped or encounters a fatal listener error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	log.Printf("webhook server listening on %s", ln.Addr())
	return s.srv.Serve(ln)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerification(w, r)
	case http.MethodPost:
		s.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification responds to the platform's webhook handshake:
// GET /webhook?hub.mode=subscribe&hub.verify_token=TOKEN&hub.challenge=CHALLENGE
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken {
		log.Printf("webhook verification successful")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	log.Printf("webhook verification failed: mode=%q token_match=%v", mode, token == s.verifyToken)
	http.Error(w, "verification failed", http.StatusForbidden)
}

// handleEvent parses a webhook POST and routes it.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if s.appSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !s.validSignature(body, sig) {
			log.Printf("webhook: invalid signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	// An encrypted Flow payload carries all three envelope fields; its
	// presence decides the path.
	var env flow.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.IsComplete() {
		s.handleFlow(w, env)
		return
	}

	var payload wa.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("webhook: invalid JSON: %v", err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Acknowledge immediately — message processing is background work.
	w.WriteHeader(http.StatusOK)
	s.dispatchMessages(payload)
}

// handleFlow runs the encrypted exchange synchronously: the platform
// enforces a tight response deadline and expects the encrypted body as
// the entire response. No failure detail ever reaches the client.
func (s *Server) handleFlow(w http.ResponseWriter, env flow.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("webhook: panic in flow pipeline: %v", rec)
			http.Error(w, "processing failed", http.StatusInternalServerError)
		}
	}()

	respBody, err := s.exchange.Handle(env)
	if err != nil {
		switch {
		case errors.Is(err, flowcrypto.ErrKeyDecryption):
			log.Printf("webhook: flow key decryption failed: %v", err)
		case errors.Is(err, flowcrypto.ErrIntegrity):
			log.Printf("webhook: flow integrity failure (tampering or key rotation?): %v", err)
		default:
			log.Printf("webhook: flow pipeline error: %v", err)
		}
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, respBody)
}

// dispatchMessages fans the payload's messages out to the pipeline. Each
// message runs on its own goroutine; the HTTP response has already been
// written.
func (s *Server) dispatchMessages(payload wa.WebhookPayload) {
	if payload.Object != "whatsapp_business_account" {
		log.Printf("webhook: ignoring non-whatsapp object %q", payload.Object)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			contacts := make(map[string]string)
			for _, c := range change.Value.Contacts {
				contacts[c.WaID] = c.Profile.Name
			}

			for _, msg := range change.Value.Messages {
				msg := msg
				go s.pipeline.HandleMessage(msg, contacts[msg.From])
			}
		}
	}
}

// validSignature checks the X-Hub-Signature-256 HMAC.
func (s *Server) validSignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	sig := strings.TrimPrefix(header, "sha256=")
	mac := hmac.New(sha256.New, []byte(s.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
