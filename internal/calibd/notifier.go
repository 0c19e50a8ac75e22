package calibd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback url targets an internal address")
)

// CallbackSecretHeader carries the per-run callback secret
const CallbackSecretHeader = "X-Calibration-Callback-Secret"

// NotificationPayload is the JSON body posted to the callback URL
type NotificationPayload struct {
	RunID       string            `json:"run_id"`
	Status      models.RunStatus  `json:"status"`
	StartedAtMs int64             `json:"started_at_unix_ms,omitempty"`
	EndedAtMs   int64             `json:"ended_at_unix_ms,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *models.RunResult `json:"result,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}

// Notifier posts run completion to callback URLs
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NotifierOption configures a Notifier
type NotifierOption func(*Notifier)

// WithRetries sets how many times a failed callback is retried
func WithRetries(n int) NotifierOption {
	return func(nt *Notifier) { nt.maxRetries = n }
}

// WithBackoff sets the delay strategy between callback retries
func WithBackoff(b utils.BackoffStrategy) NotifierOption {
	return func(nt *Notifier) { nt.backoff = b }
}

func NewNotifier(opts ...NotifierOption) *Notifier {
	n := &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, true),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CallbackBackoff builds the retry delay strategy named by kind. "exponential" doubles
// delay with jitter up to 30 times delay; "constant" waits delay before every retry.
func CallbackBackoff(kind string, delay time.Duration) (utils.BackoffStrategy, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("callback retry delay must be positive, got %s", delay)
	}
	switch kind {
	case "exponential":
		return utils.NewExponentialBackoff(delay, 30*delay, 2, true), nil
	case "constant":
		return utils.NewConstantBackoff(delay), nil
	default:
		return nil, fmt.Errorf("unknown callback backoff %q (must be exponential or constant)", kind)
	}
}

// Notify sends the run state to callbackURL in the background. {run_id} in the URL is
// replaced by the run id.
func (n *Notifier) Notify(callbackURL, callbackSecret string, rec *RunRecord) {
	if callbackURL == "" {
		return
	}
	if rec == nil || rec.Run == nil {
		logger.Warn("cannot notify: invalid run record", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", rec.Run.ID)
	payload := NotificationPayload{
		RunID:       rec.Run.ID,
		Status:      rec.Run.Status,
		StartedAtMs: unixMilli(rec.Run.StartTime),
		EndedAtMs:   unixMilli(rec.Run.EndTime),
		Error:       rec.Run.Error,
		Result:      rec.Run.Result,
		Timestamp:   time.Now().UTC().UnixMilli(),
	}
	go n.send(finalURL, callbackSecret, payload)
}

// send posts the payload, retrying with exponential backoff
func (n *Notifier) send(callbackURL, callbackSecret string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification", "run_id", payload.RunID, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "contact-calibration/1.0")
		if callbackSecret != "" {
			req.Header.Set(CallbackSecretHeader, callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed", "run_id", payload.RunID, "attempt", attempt+1, "error", err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent", "run_id", payload.RunID, "status", string(payload.Status), "status_code", resp.StatusCode)
			return nil
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", string(respBody),
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
	return lastErr
}

// validateCallbackURL rejects URLs the daemon must not call. localhost by name stays
// allowed for development setups.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, "{run_id}", "run"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if host == "metadata.google.internal" || host == "169.254.169.254" {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("%w: %s", ErrInternalHost, host)
		}
	}
	return nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
