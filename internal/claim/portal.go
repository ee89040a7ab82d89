// Package claim triggers the external creator-fee sweep.
//
// The portal builds the collect transaction server-side and returns it
// unsigned; we sign locally and submit through our own RPC connection.
// The claimed amount is never taken from the claim response: the
// orchestrator measures it as a balance delta around the claim.
package claim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"fee-lottery/internal/solana"
	"fee-lottery/internal/wallet"
)

// DefaultEndpoint is the portal's local-transaction API.
const DefaultEndpoint = "https://pumpportal.fun/api/trade-local"

// DefaultPriorityFee in SOL attached to the claim transaction.
const DefaultPriorityFee = 0.000001

// TxSender submits a signed transaction.
type TxSender interface {
	SendTransaction(ctx context.Context, serialized []byte) (string, error)
}

// Config for the portal claimer.
type Config struct {
	Endpoint    string
	PriorityFee float64
	HTTPTimeout time.Duration
}

// PortalClaimer requests, signs and submits the fee-collect transaction.
type PortalClaimer struct {
	config  Config
	client  *http.Client
	sender  TxSender
	keypair *wallet.Keypair
	logger  *log.Logger
}

// New creates a PortalClaimer.
func New(sender TxSender, kp *wallet.Keypair, config Config, logger *log.Logger) *PortalClaimer {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.PriorityFee <= 0 {
		config.PriorityFee = DefaultPriorityFee
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PortalClaimer{
		config:  config,
		client:  &http.Client{Timeout: config.HTTPTimeout},
		sender:  sender,
		keypair: kp,
		logger:  logger,
	}
}

// claimRequest is the portal's trade-local payload.
type claimRequest struct {
	PublicKey   string  `json:"publicKey"`
	Action      string  `json:"action"`
	PriorityFee float64 `json:"priorityFee"`
}

// Claim generates the collect transaction, signs it and sends it.
// Returns the claim transaction signature.
func (c *PortalClaimer) Claim(ctx context.Context) (string, error) {
	payload, err := json.Marshal(claimRequest{
		PublicKey:   c.keypair.PublicKey().Base58(),
		Action:      "collectCreatorFee",
		PriorityFee: c.config.PriorityFee,
	})
	if err != nil {
		return "", fmt.Errorf("marshal claim request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create claim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claim request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read claim response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate claim transaction: status %d: %s", resp.StatusCode, string(body))
	}

	signed, _, err := solana.SignSerializedTransaction(body, c.keypair)
	if err != nil {
		return "", fmt.Errorf("sign claim transaction: %w", err)
	}

	sig, err := c.sender.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("send claim transaction: %w", err)
	}

	c.logger.Printf("fee claim transaction sent: %s", sig)
	return sig, nil
}
