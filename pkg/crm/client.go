// Package crm is the HTTP client for the CRM and booking-webhook backends.
// Every call performs exactly one request with a bounded timeout; retries
// are left to the caller's policy (there is none today).
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Contact is one CRM contact record returned by the lookup endpoint.
type Contact struct {
	ID    string   `json:"id,omitempty"`
	Email string   `json:"email,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// Client talks to the CRM endpoints and the booking webhook.
type Client struct {
	token            string
	candidateURL     string
	interviewURL     string
	contactLookupURL string
	webhookURL       string
	httpClient       *http.Client
}

// Endpoints configures a Client. All URLs are absolute.
type Endpoints struct {
	Token            string
	CandidateURL     string
	InterviewURL     string
	ContactLookupURL string
	WebhookURL       string
}

func NewClient(ep Endpoints, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:            strings.TrimSpace(ep.Token),
		candidateURL:     strings.TrimRight(strings.TrimSpace(ep.CandidateURL), "/"),
		interviewURL:     strings.TrimRight(strings.TrimSpace(ep.InterviewURL), "/"),
		contactLookupURL: strings.TrimRight(strings.TrimSpace(ep.ContactLookupURL), "/"),
		webhookURL:       strings.TrimRight(strings.TrimSpace(ep.WebhookURL), "/"),
		httpClient:       httpClient,
	}
}

// CreateCandidate saves a candidate record and returns the created record ID.
func (c *Client) CreateCandidate(ctx context.Context, email, name string) (string, error) {
	body := map[string]any{
		"email": email,
		"name":  name,
		"tags":  []string{"new_candidate"},
	}
	var decoded struct {
		Candidate struct {
			ID string `json:"id"`
		} `json:"candidate"`
	}
	if err := c.postJSON(ctx, c.candidateURL, body, true, &decoded); err != nil {
		return "", err
	}
	if strings.TrimSpace(decoded.Candidate.ID) == "" {
		return "", fmt.Errorf("candidate response missing id")
	}
	return decoded.Candidate.ID, nil
}

// ScheduleInterview books an interview slot for the candidate. The slot is an
// ISO 8601 timestamp and is passed through opaquely.
func (c *Client) ScheduleInterview(ctx context.Context, email, slot string) error {
	body := map[string]any{
		"email": email,
		"slot":  slot,
	}
	return c.postJSON(ctx, c.interviewURL, body, true, nil)
}

// BookAppointment triggers the booking webhook, which emails a booking link.
// The webhook flow does not use the bearer token.
func (c *Client) BookAppointment(ctx context.Context, email, name string) error {
	body := map[string]any{
		"email": email,
		"name":  name,
	}
	return c.postJSON(ctx, c.webhookURL, body, false, nil)
}

// LookupContacts fetches the contact records matching an email address.
func (c *Client) LookupContacts(ctx context.Context, email string) ([]Contact, error) {
	u := c.contactLookupURL + "?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("contact lookup", resp)
	}

	var decoded struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Contacts, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body map[string]any, bearer bool, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("crm", resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8192))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return fmt.Errorf("%s error (status %d): %s", op, resp.StatusCode, strings.TrimSpace(string(b)))
}
