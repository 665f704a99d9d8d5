package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultBookedTag = "appointment_booked"

	defaultSystemPrompt = "Your name is Daela, a voice assistant for Knolabs AI Agency. " +
		"You help callers save their candidate details, answer screening questions, schedule interviews, " +
		"and book appointments for AI and automation services. " +
		"Start every conversation by asking for the caller's name and email address so records stay accurate. " +
		"If anything goes wrong, reassure the caller and offer to try again."

	defaultGreeting = "Hi there! How can I help?"
)

// Config is the process-wide immutable configuration. It is loaded once at
// startup and passed explicitly into constructors, never read ad hoc mid-call.
type Config struct {
	// CRM backends
	APIToken         string
	CandidateURL     string
	InterviewURL     string
	ContactLookupURL string
	WebhookURL       string

	// Marker tag on a contact record that means an appointment was booked.
	BookedTag string

	// Language model
	Model        string
	SystemPrompt string
	Greeting     string

	// Room transport
	RoomURL   string
	RoomToken string

	HTTPTimeout          time.Duration
	FollowUpDelay        time.Duration
	LivenessInterval     time.Duration
	MaxModelCallsPerTurn int

	// Optional operational endpoints
	MetricsAddr string
}

// Load reads configuration from the environment and validates it eagerly.
func Load() (Config, error) {
	cfg := Config{
		APIToken:             os.Getenv("VOICEDESK_API_TOKEN"),
		CandidateURL:         strings.TrimSpace(os.Getenv("VOICEDESK_CRM_CANDIDATE_URL")),
		InterviewURL:         strings.TrimSpace(os.Getenv("VOICEDESK_CRM_INTERVIEW_URL")),
		ContactLookupURL:     strings.TrimSpace(os.Getenv("VOICEDESK_CRM_CONTACT_LOOKUP_URL")),
		WebhookURL:           strings.TrimSpace(os.Getenv("VOICEDESK_WEBHOOK_URL")),
		BookedTag:            envOr("VOICEDESK_BOOKED_TAG", defaultBookedTag),
		Model:                envOr("VOICEDESK_MODEL", defaultModel),
		SystemPrompt:         envOr("VOICEDESK_SYSTEM_PROMPT", defaultSystemPrompt),
		Greeting:             envOr("VOICEDESK_GREETING", defaultGreeting),
		RoomURL:              strings.TrimSpace(os.Getenv("VOICEDESK_ROOM_URL")),
		RoomToken:            os.Getenv("VOICEDESK_ROOM_TOKEN"),
		HTTPTimeout:          envDurationOr("VOICEDESK_HTTP_TIMEOUT", 10*time.Second),
		FollowUpDelay:        envDurationOr("VOICEDESK_FOLLOWUP_DELAY", 20*time.Second),
		LivenessInterval:     envDurationOr("VOICEDESK_LIVENESS_INTERVAL", time.Second),
		MaxModelCallsPerTurn: envIntOr("VOICEDESK_MAX_MODEL_CALLS_PER_TURN", 4),
		MetricsAddr:          strings.TrimSpace(os.Getenv("VOICEDESK_METRICS_ADDR")),
	}

	if strings.TrimSpace(cfg.APIToken) == "" {
		return Config{}, fmt.Errorf("VOICEDESK_API_TOKEN must be set")
	}
	for _, ep := range []struct {
		key string
		val string
	}{
		{"VOICEDESK_CRM_CANDIDATE_URL", cfg.CandidateURL},
		{"VOICEDESK_CRM_INTERVIEW_URL", cfg.InterviewURL},
		{"VOICEDESK_CRM_CONTACT_LOOKUP_URL", cfg.ContactLookupURL},
		{"VOICEDESK_WEBHOOK_URL", cfg.WebhookURL},
		{"VOICEDESK_ROOM_URL", cfg.RoomURL},
	} {
		if ep.val == "" {
			return Config{}, fmt.Errorf("%s must be set", ep.key)
		}
		if _, err := url.ParseRequestURI(ep.val); err != nil {
			return Config{}, fmt.Errorf("%s is not a valid URL: %v", ep.key, err)
		}
	}
	if strings.TrimSpace(cfg.BookedTag) == "" {
		return Config{}, fmt.Errorf("VOICEDESK_BOOKED_TAG must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("VOICEDESK_MODEL must not be empty")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_HTTP_TIMEOUT must be > 0")
	}
	if cfg.FollowUpDelay <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_FOLLOWUP_DELAY must be > 0")
	}
	if cfg.LivenessInterval <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_LIVENESS_INTERVAL must be > 0")
	}
	if cfg.MaxModelCallsPerTurn <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_MAX_MODEL_CALLS_PER_TURN must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
