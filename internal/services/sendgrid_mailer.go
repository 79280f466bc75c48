package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/civichub/backend/internal/models"
)

type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	ToEmail    string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridMailer(apiKey string, fromEmail string, adminEmail string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:    strings.TrimSpace(apiKey),
		FromEmail: strings.TrimSpace(fromEmail),
		ToEmail:   strings.TrimSpace(adminEmail),
		Endpoint:  "https://api.sendgrid.com/v3/mail/send",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendGridEmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridEmailAddress `json:"to"`
	Subject    string                 `json:"subject"`
	CustomArgs map[string]string      `json:"custom_args,omitempty"`
}

type sendGridMailSendRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmailAddress      `json:"from"`
	ReplyTo          *sendGridEmailAddress     `json:"reply_to,omitempty"`
	Content          []sendGridContent         `json:"content"`
}

func (m *SendGridMailer) checkConfigured() error {
	if m == nil {
		return fmt.Errorf("sendgrid mailer not configured")
	}
	if m.APIKey == "" {
		return fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if m.FromEmail == "" {
		return fmt.Errorf("missing NOTIFY_FROM_EMAIL")
	}
	if m.ToEmail == "" {
		return fmt.Errorf("missing ADMIN_EMAIL")
	}
	return nil
}

// NotifyNewAccount tells the administrator a new signup is waiting for
// approval.
func (m *SendGridMailer) NotifyNewAccount(ctx context.Context, account *models.Account) error {
	if err := m.checkConfigured(); err != nil {
		return err
	}

	name := account.DisplayName()
	if name == "" {
		name = account.Email
	}

	plain := fmt.Sprintf(
		"There is a new signup on CivicHub awaiting approval.\n\nEmail: %s\nName: %s\nUser ID: %s\n",
		account.Email,
		name,
		account.UserID,
	)

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:      []sendGridEmailAddress{{Email: m.ToEmail}},
				Subject: "New CivicHub signup: " + name,
				CustomArgs: map[string]string{
					"user_id": account.UserID,
				},
			},
		},
		From: sendGridEmailAddress{
			Email: m.FromEmail,
			Name:  "CivicHub",
		},
		Content: []sendGridContent{
			{Type: "text/plain", Value: plain},
		},
	}
	if account.Email != "" {
		reqBody.ReplyTo = &sendGridEmailAddress{Email: account.Email, Name: name}
	}
	return m.send(ctx, reqBody)
}

// SendBugReport forwards a bug report from the web client to the
// administrator.
func (m *SendGridMailer) SendBugReport(ctx context.Context, ticket string, report models.BugReport) error {
	if err := m.checkConfigured(); err != nil {
		return err
	}

	body := strings.TrimSpace(report.Message)
	if body == "" {
		body = "(empty message)"
	}
	page := strings.TrimSpace(report.PageURL)
	if page == "" {
		page = "(not given)"
	}

	plain := fmt.Sprintf(
		"Bug report: %s\nFrom: %s <%s>\nPage: %s\n\nMessage:\n%s\n",
		ticket,
		strings.TrimSpace(report.Name),
		strings.TrimSpace(report.Email),
		page,
		body,
	)

	reqBody := sendGridMailSendRequest{
		Personalizations: []sendGridPersonalization{
			{
				To:      []sendGridEmailAddress{{Email: m.ToEmail}},
				Subject: fmt.Sprintf("CivicHub bug report: #%s", ticket),
				CustomArgs: map[string]string{
					"ticket": ticket,
				},
			},
		},
		From: sendGridEmailAddress{
			Email: m.FromEmail,
			Name:  "CivicHub Bug Reports",
		},
		ReplyTo: &sendGridEmailAddress{
			Email: strings.TrimSpace(report.Email),
			Name:  strings.TrimSpace(report.Name),
		},
		Content: []sendGridContent{
			{Type: "text/plain", Value: plain},
		},
	}
	return m.send(ctx, reqBody)
}

func (m *SendGridMailer) send(ctx context.Context, reqBody sendGridMailSendRequest) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid mail send http %d", resp.StatusCode)
	}
	return nil
}
