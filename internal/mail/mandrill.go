package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

const defaultBaseURL = "https://mandrillapp.com/api/1.0"

// Config configures the Mandrill client.
type Config struct {
	APIKey  string
	BaseURL string // override for tests; default Mandrill API root

	// RatePerSec bounds outbound API calls. 0 means a conservative default.
	RatePerSec int

	Timeout time.Duration
}

// Mandrill is a minimal client for the two API surfaces this system uses:
// subaccount validation and message sending.
type Mandrill struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewMandrill(cfg Config, log logx.Logger) *Mandrill {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Mandrill{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

func (m *Mandrill) ValidateAccount(ctx context.Context, accountRef string) error {
	if strings.TrimSpace(accountRef) == "" {
		return fmt.Errorf("%w: empty reference", ErrUnknownAccount)
	}
	body := map[string]string{"key": m.cfg.APIKey, "id": accountRef}
	status, raw, err := m.post(ctx, "/subaccounts/info.json", body)
	if err != nil {
		return &TransportError{Op: "validate_account", Err: err}
	}
	if status == http.StatusOK {
		return nil
	}
	// Mandrill reports unknown subaccounts as a 500 with name Unknown_Subaccount.
	var apiErr struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal(raw, &apiErr); jerr == nil && strings.EqualFold(apiErr.Name, "Unknown_Subaccount") {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountRef)
	}
	return &TransportError{Op: "validate_account", Err: fmt.Errorf("status %d: %s", status, raw)}
}

func (m *Mandrill) Send(ctx context.Context, msg Message) error {
	to := make([]map[string]string, 0, len(msg.To))
	for _, rcpt := range msg.To {
		to = append(to, map[string]string{"email": rcpt})
	}
	payload := map[string]any{
		"key": m.cfg.APIKey,
		"message": map[string]any{
			"subject":             msg.Subject,
			"from_email":          msg.From,
			"to":                  to,
			"text":                msg.Text,
			"html":                msg.HTML,
			"subaccount":          msg.AccountTag,
			"preserve_recipients": true,
		},
	}
	status, raw, err := m.post(ctx, "/messages/send.json", payload)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if status != http.StatusOK {
		return &TransportError{Op: "send", Err: fmt.Errorf("status %d: %s", status, raw)}
	}
	return nil
}

func (m *Mandrill) post(ctx context.Context, path string, body any) (int, []byte, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}
