package flow

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/danacepat/wa-flows/internal/flowcrypto"
)

// Exchange runs the full decrypt → route → encrypt pipeline for one
// encrypted Flow request. It owns the per-request session key; the key is
// never stored or reused across requests.
type Exchange struct {
	Key    *rsa.PrivateKey
	Router *Router
}

// NewExchange wires the pipeline over the process private key.
func NewExchange(key *rsa.PrivateKey, router *Router) *Exchange {
	return &Exchange{Key: key, Router: router}
}

// Handle decrypts the envelope, routes the action, and returns the
// base64-encoded encrypted response — the exact HTTP response body. The
// only errors it returns are cryptographic or encoding failures; all
// domain routing failures have already been resolved into screens.
func (e *Exchange) Handle(env Envelope) (string, error) {
	encKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64 key: %v", flowcrypto.ErrKeyDecryption, err)
	}
	body, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64 body: %v", flowcrypto.ErrIntegrity, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64 nonce: %v", flowcrypto.ErrIntegrity, err)
	}

	sessionKey, err := flowcrypto.DecryptSessionKey(encKey, e.Key)
	if err != nil {
		return "", err
	}

	plaintext, err := flowcrypto.DecryptBody(body, nonce, sessionKey)
	if err != nil {
		return "", err
	}

	var req Request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return "", fmt.Errorf("decode flow request: %w", err)
	}

	resp := e.Router.Route(req)
	return Encode(resp, sessionKey, flowcrypto.InvertNonce(nonce))
}

// Encode serializes a screen response to compact JSON, encrypts it under
// the session key with the derived nonce, and base64-encodes the result.
// The returned string is the full response body — no JSON wrapper.
func Encode(resp Response, sessionKey, nonce []byte) (string, error) {
	if resp.Data == nil {
		resp.Data = map[string]any{}
	}
	plaintext, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode flow response: %w", err)
	}

	sealed, err := flowcrypto.EncryptBody(plaintext, sessionKey, nonce)
	if err != nil {
		return "", fmt.Errorf("encrypt flow response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
