package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrAccountNotFound is returned when the requested account has no record
// on the ledger.
var ErrAccountNotFound = errors.New("ledger: account not found")

// ProgramError is an on-ledger rejection raised by the target program
// itself, as opposed to a transport failure. The code is the program's own
// error enum value.
type ProgramError struct {
	Code uint32
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("ledger: program error %d", e.Code)
}

// Client talks JSON-RPC to a ledger node. Every call carries an explicit
// timeout; ledger nodes can be slow on cold starts.
type Client struct {
	RPCURL  string
	HTTP    *http.Client
	Timeout time.Duration
}

// NewClient returns a client with a 30 second per-call timeout.
func NewClient(rpcURL string) *Client {
	return &Client{
		RPCURL:  rpcURL,
		HTTP:    &http.Client{},
		Timeout: 30 * time.Second,
	}
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	// Build the request body from a template, same as the upstream queries.
	body := `{"jsonrpc":"2.0","id":1}`
	body, _ = sjson.Set(body, "method", method)
	body, err := sjson.Set(body, "params", params)
	if err != nil {
		return nil, fmt.Errorf("ledger: building %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCURL, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: reading %s response: %w", method, err)
	}

	var parsed rpcResponse
	if err = json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ledger: malformed %s response: %w", method, err)
	}
	if parsed.Error != nil {
		// A custom program error inside a preflight failure is a policy
		// rejection by the contract, not a transport fault.
		if custom := gjson.GetBytes(parsed.Error.Data, "err.InstructionError.1.Custom"); custom.Exists() {
			return nil, &ProgramError{Code: uint32(custom.Uint())}
		}
		return nil, fmt.Errorf("ledger: %s failed: %s (%d)", method, parsed.Error.Message, parsed.Error.Code)
	}
	return parsed.Result, nil
}

// GetAccountInfo fetches an account's raw data bytes at confirmed
// commitment. Missing accounts return ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, address PublicKey) ([]byte, error) {
	params := []interface{}{
		address.String(),
		map[string]string{"encoding": "base64", "commitment": "confirmed"},
	}
	result, err := c.call(ctx, "getAccountInfo", params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err = json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("ledger: malformed account info: %w", err)
	}
	if parsed.Value == nil {
		return nil, ErrAccountNotFound
	}
	if len(parsed.Value.Data) == 0 {
		return nil, fmt.Errorf("ledger: account %s has no data field", address)
	}
	data, err := base64.StdEncoding.DecodeString(parsed.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("ledger: decoding account data: %w", err)
	}
	return data, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var blockhash [32]byte
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	result, err := c.call(ctx, "getLatestBlockhash", params)
	if err != nil {
		return blockhash, err
	}

	var parsed struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err = json.Unmarshal(result, &parsed); err != nil {
		return blockhash, fmt.Errorf("ledger: malformed blockhash response: %w", err)
	}
	decoded, err := base58.Decode(parsed.Value.Blockhash)
	if err != nil || len(decoded) != 32 {
		return blockhash, fmt.Errorf("ledger: invalid blockhash %q", parsed.Value.Blockhash)
	}
	copy(blockhash[:], decoded)
	return blockhash, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(tx.Serialize())
	params := []interface{}{
		encoded,
		map[string]interface{}{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	result, err := c.call(ctx, "sendTransaction", params)
	if err != nil {
		return "", err
	}
	var signature string
	if err = json.Unmarshal(result, &signature); err != nil {
		return "", fmt.Errorf("ledger: malformed send response: %w", err)
	}
	return signature, nil
}

// ConfirmTransaction polls the signature status until the ledger reports it
// confirmed, the transaction errors, or the context is done.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		result, err := c.call(ctx, "getSignatureStatuses", []interface{}{[]string{signature}})
		if err != nil {
			return err
		}

		var parsed struct {
			Value []*struct {
				ConfirmationStatus string          `json:"confirmationStatus"`
				Err                json.RawMessage `json:"err"`
			} `json:"value"`
		}
		if err = json.Unmarshal(result, &parsed); err != nil {
			return fmt.Errorf("ledger: malformed status response: %w", err)
		}
		if len(parsed.Value) > 0 && parsed.Value[0] != nil {
			status := parsed.Value[0]
			if len(status.Err) > 0 && string(status.Err) != "null" {
				if custom := gjson.GetBytes(status.Err, "InstructionError.1.Custom"); custom.Exists() {
					return &ProgramError{Code: uint32(custom.Uint())}
				}
				return fmt.Errorf("ledger: transaction %s failed: %s", signature, status.Err)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ledger: confirmation of %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
