package mailer

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

	"github.com/teleos-scientific/tlink-backend/pkg/config"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
)

const sendPath = "/v3/mail/send"

// Message is a single outbound email.
type Message struct {
	To       []string
	From     string
	Subject  string
	HTMLBody string
	TextBody string
}

// Client sends transactional email through the SendGrid v3 REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	defaultFrom string
	logg        *logger.Logger
}

// New builds a SendGrid client from config.
func New(cfg config.SendGridConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		defaultFrom: cfg.DefaultFrom,
		logg:        logg,
	}, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers the message. SendGrid responds 202 on acceptance.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}
	body := buildSendRequest(msg, c.defaultFrom)
	if len(body.Content) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding mail request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building mail request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling sendgrid")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if c.logg != nil {
			c.logg.Info(c.logg.WithField(ctx, "recipients", len(msg.To)), "email accepted by sendgrid")
		}
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("sendgrid rejected mail: status %d", resp.StatusCode)).
		WithDetails(map[string]any{"response": string(detail)})
}

func buildSendRequest(msg Message, defaultFrom string) sendRequest {
	from := msg.From
	if strings.TrimSpace(from) == "" {
		from = defaultFrom
	}
	to := make([]emailAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			to = append(to, emailAddress{Email: trimmed})
		}
	}
	var contents []content
	if msg.TextBody != "" {
		contents = append(contents, content{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		contents = append(contents, content{Type: "text/html", Value: msg.HTMLBody})
	}
	return sendRequest{
		Personalizations: []personalization{{To: to}},
		From:             emailAddress{Email: from},
		Subject:          msg.Subject,
		Content:          contents,
	}
}
