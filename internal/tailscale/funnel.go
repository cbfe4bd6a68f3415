// Package tailscale exposes the webhook server to the public internet
// through a Tailscale funnel, as an alternative to a directly reachable
// address. Meta requires an HTTPS endpoint for webhook delivery; the
// funnel provides one without a reverse proxy or certificates.
package tailscale

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Tunnel is a running `tailscale funnel` process forwarding public HTTPS
// traffic to the local webhook listener.
type Tunnel struct {
	// WebhookURL is the public endpoint to register with Meta,
	// e.g. "https://machine.tailnet.ts.net/webhook".
	WebhookURL string

	proc *os.Process
}

type nodeStatus struct {
	Self struct {
		DNSName string `json:"DNSName"`
	} `json:"Self"`
}

// Available reports whether the tailscale CLI can be found.
func Available() error {
	if _, err := exec.LookPath("tailscale"); err != nil {
		return fmt.Errorf("tailscale CLI not found in PATH (install from https://tailscale.com/download)")
	}
	return nil
}

// nodeURL resolves the node's stable HTTPS origin from `tailscale status`.
func nodeURL() (string, error) {
	out, err := exec.Command("tailscale", "status", "--json").Output()
	if err != nil {
		return "", fmt.Errorf("tailscale status: %w (is tailscaled running?)", err)
	}

	var status nodeStatus
	if err := json.Unmarshal(out, &status); err != nil {
		return "", fmt.Errorf("parse tailscale status: %w", err)
	}

	dns := strings.TrimSuffix(status.Self.DNSName, ".")
	if dns == "" {
		return "", fmt.Errorf("tailscale: node has no DNS name, is it connected?")
	}
	return "https://" + dns, nil
}

// Open starts a funnel for the given local port and returns the tunnel.
// The caller must Close it on shutdown.
func Open(port string) (*Tunnel, error) {
	if err := Available(); err != nil {
		return nil, err
	}

	base, err := nodeURL()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("tailscale", "funnel", port)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tailscale funnel: %w", err)
	}

	t := &Tunnel{
		WebhookURL: base + "/webhook",
		proc:       cmd.Process,
	}
	log.Printf("tailscale funnel: port %s reachable at %s", port, t.WebhookURL)
	return t, nil
}

// Close terminates the funnel process.
func (t *Tunnel) Close() error {
	if t == nil || t.proc == nil {
		return nil
	}
	if err := t.proc.Kill(); err != nil {
		return fmt.Errorf("stop tailscale funnel: %w", err)
	}
	return nil
}
