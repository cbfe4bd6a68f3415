package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/danacepat/wa-flows/internal/analysis"
	"github.com/danacepat/wa-flows/internal/config"
	"github.com/danacepat/wa-flows/internal/credit"
	"github.com/danacepat/wa-flows/internal/flow"
	"github.com/danacepat/wa-flows/internal/flowcrypto"
	"github.com/danacepat/wa-flows/internal/gateway"
	"github.com/danacepat/wa-flows/internal/loan"
	"github.com/danacepat/wa-flows/internal/objstore"
	"github.com/danacepat/wa-flows/internal/pipeline"
	"github.com/danacepat/wa-flows/internal/queue"
	"github.com/danacepat/wa-flows/internal/security"
	"github.com/danacepat/wa-flows/internal/store"
	"github.com/danacepat/wa-flows/internal/tailscale"
	"github.com/danacepat/wa-flows/internal/wa"
	"github.com/danacepat/wa-flows/internal/webhook"
)

// dedupRetention bounds the processed-message table; Meta retries stop
// well inside a week.
const dedupRetention = 7 * 24 * time.Hour

func main() {
	// Optional .env for local development; the real config comes from
	// TOML + environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	key, err := flowcrypto.LoadPrivateKey(cfg.Flows.PrivateKeyPath)
	if err != nil {
		log.Fatalf("load flow private key: %v", err)
	}

	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		log.Fatalf("create state dir: %v", err)
	}
	db, err := store.Open(filepath.Join(cfg.State.Dir, "wa-flows.db"))
	if err != nil {
		log.Fatalf("open state db: %v", err)
	}
	defer db.Close()

	waClient := wa.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIKey, cfg.WhatsApp.PhoneNumberID)

	gw := gateway.NewNotifier(cfg.Gateway.URL, cfg.Gateway.Token)
	if gw.Enabled() {
		if err := gw.Connect(); err != nil {
			// The notifier reconnects on demand; a cold gateway is not fatal.
			log.Printf("gateway connect: %v (will retry on first event)", err)
		}
		defer gw.Close()
	}

	p := &pipeline.Pipeline{
		Messenger: waClient,
		Store:     db,
		Guard:     security.New(cfg.Security),
		Gateway:   gw,
	}
	if cfg.Storage.Endpoint != "" {
		p.Storage = objstore.NewClient(cfg.Storage.Endpoint, cfg.Storage.Bucket, cfg.Storage.APIKey)
	}
	if cfg.Analysis.Endpoint != "" {
		p.Analysis = analysis.NewClient(cfg.Analysis.Endpoint, cfg.Analysis.APIKey)
	}
	if cfg.Credit.Endpoint != "" {
		p.Credit = creditScorer{credit.NewClient(cfg.Credit.Endpoint, cfg.Credit.APIKey)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Queue.URL != "" {
		q, err := queue.Connect(cfg.Queue.URL, cfg.Queue.Stream, cfg.Queue.Subject)
		if err != nil {
			log.Fatalf("connect queue: %v", err)
		}
		defer q.Close()
		p.Dispatcher = q
		go func() {
			if err := q.Consume(ctx, p); err != nil {
				log.Printf("queue consumer stopped: %v", err)
			}
		}()
	} else {
		log.Printf("no queue configured, media jobs run in-process")
		p.Dispatcher = &pipeline.GoDispatcher{Pipeline: p}
	}

	exchange := flow.NewExchange(key, flow.NewRouter(flow.DefaultRegistry(), loan.ScreenData))
	server := webhook.NewServer(cfg.Server.Addr, cfg.Server.VerifyToken, cfg.Server.AppSecret, exchange, p)

	if cfg.Server.Mode == "tailscale" {
		port := cfg.Server.Addr
		if i := strings.LastIndex(port, ":"); i >= 0 {
			port = port[i+1:]
		}
		tun, err := tailscale.Open(port)
		if err != nil {
			log.Fatalf("tailscale funnel: %v", err)
		}
		defer tun.Close()
		log.Printf("register this webhook URL with Meta: %s", tun.WebhookURL)
	}

	go maintenance(ctx, p.Guard, db)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("received %s, shutting down", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("webhook server error: %v", err)
	}
}

// creditScorer adapts the bureau client to the pipeline's Scorer.
type creditScorer struct {
	client *credit.Client
}

func (s creditScorer) Lookup(nationalID string) (*pipeline.CreditScore, error) {
	score, err := s.client.Lookup(nationalID)
	if err != nil {
		return nil, err
	}
	return &pipeline.CreditScore{Value: score.Value, Band: score.Band}, nil
}

// maintenance periodically resets rate-limit buckets and prunes old
// dedup rows.
func maintenance(ctx context.Context, guard *security.Guard, db *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			guard.Reset()
			if n, err := db.PruneProcessed(dedupRetention); err != nil {
				log.Printf("prune processed: %v", err)
			} else if n > 0 {
				log.Printf("pruned %d processed-message rows", n)
			}
		}
	}
}
