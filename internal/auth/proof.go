package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WalletProof is the structural shape of a wallet authentication payload.
type WalletProof struct {
	Address string `json:"address"`
	Proof   struct {
		Timestamp int64  `json:"timestamp"` // unix seconds at signing time
		Domain    string `json:"domain"`
		Payload   string `json:"payload"` // the issued challenge
		Signature string `json:"signature"`
	} `json:"proof"`
}

// proofMaxAge is how old a signed proof may be.
const proofMaxAge = 5 * time.Minute

// ProofChecker implements Verifier for deployments where signature
// validity is delegated to an external wallet oracle. It owns everything
// around the signature: structural validation, timestamp freshness, domain
// binding, and single-use challenge redemption. The signature check itself
// is injected; a nil check accepts any structurally valid proof (dev mode).
type ProofChecker struct {
	domain     string
	challenges *ChallengeIssuer

	// CheckSignature validates (address, signature) for the signed
	// challenge payload. Nil disables the check.
	CheckSignature func(ctx context.Context, proof *WalletProof) error
}

// NewProofChecker creates a checker bound to the application domain.
func NewProofChecker(domain string, challenges *ChallengeIssuer) *ProofChecker {
	return &ProofChecker{domain: domain, challenges: challenges}
}

// VerifyProof validates a raw auth payload and returns the wallet address
// as the identity. The challenge is consumed before the (possibly slow)
// signature check, so a replay can never reach the oracle twice.
func (p *ProofChecker) VerifyProof(ctx context.Context, raw json.RawMessage) (string, error) {
	var wp WalletProof
	if err := json.Unmarshal(raw, &wp); err != nil {
		return "", fmt.Errorf("%w: malformed payload", ErrInvalidProof)
	}
	if wp.Address == "" || wp.Proof.Signature == "" {
		return "", fmt.Errorf("%w: missing address or signature", ErrInvalidProof)
	}

	age := time.Since(time.Unix(wp.Proof.Timestamp, 0))
	if age > proofMaxAge || age < -time.Minute {
		return "", fmt.Errorf("%w: proof timestamp out of window", ErrInvalidProof)
	}
	if wp.Proof.Domain != p.domain {
		return "", fmt.Errorf("%w: domain mismatch", ErrInvalidProof)
	}
	if err := p.challenges.Consume(wp.Proof.Payload); err != nil {
		return "", err
	}

	if p.CheckSignature != nil {
		if err := p.CheckSignature(ctx, &wp); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
	}
	return wp.Address, nil
}
