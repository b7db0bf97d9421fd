package server

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/chainproof/nftgate/pkg/verify"
)

// x402Version is the payment protocol version this gateway speaks.
const x402Version = 1

// TokenID is a token identifier normalized to a canonical decimal string.
// It unmarshals from either a JSON number or a decimal string.
type TokenID string

func (t *TokenID) UnmarshalJSON(b []byte) error {
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		raw = n.String()
	}

	if raw == "" {
		*t = ""
		return nil
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return fmt.Errorf("tokenId must be a non-negative integer, got %q", raw)
	}
	*t = TokenID(id.String())
	return nil
}

// paymentRequirements describes one way to pay for the resource,
// following the x402 payment-requirements shape.
type paymentRequirements struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	MaxAmountRequired string        `json:"maxAmountRequired"`
	Resource          string        `json:"resource"`
	Description       string        `json:"description"`
	MimeType          string        `json:"mimeType"`
	PayTo             string        `json:"payTo"`
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds"`
	Asset             string        `json:"asset"`
	OutputSchema      *outputSchema `json:"outputSchema,omitempty"`
}

type outputSchema struct {
	Output verificationOutput `json:"output"`
}

type verificationOutput struct {
	Wallet   string `json:"wallet"`
	TokenID  string `json:"tokenId"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// verifiedBody is the 200 response: an x402-style descriptor naming the
// payer and echoing the verified claim in outputSchema.output.
type verifiedBody struct {
	X402Version int                   `json:"x402Version"`
	Payer       string                `json:"payer"`
	Accepts     []paymentRequirements `json:"accepts"`
}

// paymentRequiredBody is the 402 response: diagnostic flags for each
// evidence check plus the payment requirements an x402 client needs.
type paymentRequiredBody struct {
	X402Version      int                   `json:"x402Version"`
	Error            string                `json:"error"`
	PaymentOK        bool                  `json:"paymentOk"`
	OwnsNFT          bool                  `json:"ownsNFT"`
	TransferVerified bool                  `json:"transferVerified"`
	Accepts          []paymentRequirements `json:"accepts"`
}

func (s *Server) requirements(output *outputSchema) paymentRequirements {
	return paymentRequirements{
		Scheme:            "exact",
		Network:           s.cfg.PaymentNetwork,
		MaxAmountRequired: s.cfg.PaymentAmount,
		Resource:          s.cfg.ResourceURL,
		Description:       s.cfg.ResourceDesc,
		MimeType:          "application/json",
		PayTo:             s.cfg.PayoutAddress,
		MaxTimeoutSeconds: 60,
		Asset:             s.cfg.PaymentAsset,
		OutputSchema:      output,
	}
}

func (s *Server) verifiedResponse(req verifyOwnershipRequest) verifiedBody {
	output := &outputSchema{
		Output: verificationOutput{
			Wallet:   req.Wallet,
			TokenID:  string(req.TokenID),
			Verified: true,
			Message:  "Ownership verified",
		},
	}
	return verifiedBody{
		X402Version: x402Version,
		Payer:       req.Wallet,
		Accepts:     []paymentRequirements{s.requirements(output)},
	}
}

func (s *Server) paymentRequiredResponse(out verify.Outcome) paymentRequiredBody {
	return paymentRequiredBody{
		X402Version:      x402Version,
		Error:            "ownership not verified",
		PaymentOK:        out.PaymentOK,
		OwnsNFT:          out.OwnsToken,
		TransferVerified: out.TransferVerified,
		Accepts:          []paymentRequirements{s.requirements(nil)},
	}
}
