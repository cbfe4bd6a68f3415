package flow

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/danacepat/wa-flows/internal/flowcrypto"
	"github.com/danacepat/wa-flows/internal/loan"
)

// sealRequest encrypts a Flow request the way the platform does: fresh AES
// session key wrapped with RSA-OAEP, body sealed with AES-GCM.
func sealRequest(t *testing.T, pub *rsa.PublicKey, req Request) (Envelope, []byte, []byte) {
	t.Helper()

	sessionKey := make([]byte, 32)
	nonce := make([]byte, flowcrypto.NonceSize)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(nonce); err != nil {
		t.Fatal(err)
	}

	plaintext, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := flowcrypto.EncryptBody(plaintext, sessionKey, nonce)
	if err != nil {
		t.Fatal(err)
	}
	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
	if err != nil {
		t.Fatal(err)
	}

	return Envelope{
		EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrappedKey),
		InitialVector:     base64.StdEncoding.EncodeToString(nonce),
	}, sessionKey, nonce
}

// openResponse decrypts the handler's base64 body with the inverted nonce,
// as the platform client does.
func openResponse(t *testing.T, body string, sessionKey, reqNonce []byte) Response {
	t.Helper()

	sealed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatalf("response is not base64: %v", err)
	}
	plaintext, err := flowcrypto.DecryptBody(sealed, flowcrypto.InvertNonce(reqNonce), sessionKey)
	if err != nil {
		t.Fatalf("open response: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testExchange(t *testing.T) (*Exchange, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return NewExchange(priv, NewRouter(DefaultRegistry(), loan.ScreenData)), priv
}

func TestExchangeRoundTrip(t *testing.T) {
	ex, priv := testExchange(t)

	env, sessionKey, nonce := sealRequest(t, &priv.PublicKey, Request{
		Action: ActionInit,
		FlowID: LoanFlowID,
		Data:   map[string]any{},
	})

	body, err := ex.Handle(env)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	resp := openResponse(t, body, sessionKey, nonce)
	if resp.Screen != ScreenMainMenu {
		t.Fatalf("screen = %q, want %q", resp.Screen, ScreenMainMenu)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Fatalf("data = %v, want empty object", resp.Data)
	}
}

// TestExchangeResponseNonceConformance rejects the protocol violation of
// encrypting the response under the request nonce.
func TestExchangeResponseNonceConformance(t *testing.T) {
	ex, priv := testExchange(t)

	env, sessionKey, nonce := sealRequest(t, &priv.PublicKey, Request{Action: ActionPing})
	body, err := ex.Handle(env)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := flowcrypto.DecryptBody(sealed, nonce, sessionKey); !errors.Is(err, flowcrypto.ErrIntegrity) {
		t.Fatalf("response decrypts under request nonce (err=%v): nonce not inverted", err)
	}
}

func TestExchangeForeignKey(t *testing.T) {
	ex, _ := testExchange(t)

	// Envelope sealed for a different business's public key.
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	env, _, _ := sealRequest(t, &other.PublicKey, Request{Action: ActionPing})

	if _, err := ex.Handle(env); !errors.Is(err, flowcrypto.ErrKeyDecryption) {
		t.Fatalf("got err %v, want ErrKeyDecryption", err)
	}
}

func TestExchangeTamperedBody(t *testing.T) {
	ex, priv := testExchange(t)

	env, _, _ := sealRequest(t, &priv.PublicKey, Request{Action: ActionPing})
	raw, _ := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	raw[0] ^= 0x01
	env.EncryptedFlowData = base64.StdEncoding.EncodeToString(raw)

	if _, err := ex.Handle(env); !errors.Is(err, flowcrypto.ErrIntegrity) {
		t.Fatalf("got err %v, want ErrIntegrity", err)
	}
}

func TestExchangeBadBase64(t *testing.T) {
	ex, priv := testExchange(t)

	env, _, _ := sealRequest(t, &priv.PublicKey, Request{Action: ActionPing})
	env.EncryptedAESKey = "!!! not base64 !!!"

	if _, err := ex.Handle(env); !errors.Is(err, flowcrypto.ErrKeyDecryption) {
		t.Fatalf("got err %v, want ErrKeyDecryption", err)
	}
}

func TestEnvelopeIsComplete(t *testing.T) {
	full := Envelope{EncryptedFlowData: "a", EncryptedAESKey: "b", InitialVector: "c"}
	if !full.IsComplete() {
		t.Error("complete envelope not detected")
	}

	partials := []Envelope{
		{},
		{EncryptedFlowData: "a"},
		{EncryptedFlowData: "a", EncryptedAESKey: "b"},
		{EncryptedAESKey: "b", InitialVector: "c"},
	}
	for i, env := range partials {
		if env.IsComplete() {
			t.Errorf("partial envelope %d detected as complete", i)
		}
	}
}
