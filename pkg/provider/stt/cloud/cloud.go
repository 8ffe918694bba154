// Package cloud transcribes recordings through the hosted transcription
// function. The caller authenticates with the session JWT issued at sign-in;
// credentials are validated locally with [Preflight] before any audio is
// captured so the user learns about a stale session up front instead of
// after speaking.
package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
)

// MaxUploadBytes is the largest MP3 the transcription function accepts.
const MaxUploadBytes = 25 << 20

// expiryGrace treats tokens within this window of their exp claim as
// already expired, so a request started now cannot die mid-flight on a
// token that lapses seconds later.
const expiryGrace = 30 * time.Second

// ErrorKind classifies cloud transcription failures.
type ErrorKind string

const (
	// KindNoCredentials means no JWT or function URL is configured.
	KindNoCredentials ErrorKind = "no_credentials"

	// KindJwtExpired means the JWT's exp claim is in the past or within
	// the grace window.
	KindJwtExpired ErrorKind = "jwt_expired"

	// KindJwtInvalid means the JWT could not be parsed at all.
	KindJwtInvalid ErrorKind = "jwt_invalid"

	// KindNotSubscriber means the signed-in account has no active
	// subscription.
	KindNotSubscriber ErrorKind = "not_subscriber"

	// KindAuthFailed means the server rejected the request as
	// unauthorised.
	KindAuthFailed ErrorKind = "auth_failed"

	// KindTooLarge means the recording exceeds [MaxUploadBytes].
	KindTooLarge ErrorKind = "too_large"

	// KindRequestFailed covers transport and server errors that are not
	// authentication problems.
	KindRequestFailed ErrorKind = "request_failed"
)

// Error is a classified cloud transcription failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cloud: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("cloud: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuth reports whether the error should be surfaced as a sign-in
// problem rather than a transcription failure.
func (e *Error) IsAuth() bool {
	switch e.Kind {
	case KindNoCredentials, KindJwtExpired, KindJwtInvalid, KindNotSubscriber, KindAuthFailed:
		return true
	}
	return false
}

// Credentials is the cloud session state needed to call the transcription
// function.
type Credentials struct {
	// JWT is the session token from the auth provider.
	JWT string `json:"jwt"`

	// FunctionURL is the transcription function endpoint.
	FunctionURL string `json:"function_url"`

	// IsSubscriber reports whether the account has an active subscription.
	IsSubscriber bool `json:"is_subscriber"`
}

// Preflight validates credentials locally without any network traffic.
// Checks run in order: missing credentials, expired token, malformed
// token, missing subscription. Returns nil when a request may be sent.
func Preflight(creds Credentials, now time.Time) error {
	if creds.JWT == "" || creds.FunctionURL == "" {
		return &Error{Kind: KindNoCredentials, Message: "sign in to use cloud transcription"}
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(creds.JWT, claims)
	if err != nil {
		return &Error{Kind: KindJwtInvalid, Message: "session token is malformed", Err: err}
	}

	exp, expErr := claims.GetExpirationTime()
	if expErr != nil || exp == nil {
		return &Error{Kind: KindJwtInvalid, Message: "session token has no expiry"}
	}
	if exp.Time.Sub(now) <= expiryGrace {
		return &Error{Kind: KindJwtExpired, Message: "session expired, sign in again"}
	}

	if !creds.IsSubscriber {
		return &Error{Kind: KindNotSubscriber, Message: "an active subscription is required"}
	}
	return nil
}

// Request carries one encoded recording to the transcription function.
type Request struct {
	// Audio is the complete MP3 file.
	Audio []byte

	// LLMCleanup asks the server to run its own cleanup pass.
	LLMCleanup bool

	// UserContext is freeform text forwarded to the server-side cleanup.
	UserContext string

	// SelectedText is the text selected in the target app when edit mode
	// is active; forwarded base64-encoded.
	SelectedText string

	// HistorySync reports whether the account syncs transcription history.
	HistorySync bool

	// Language is a BCP-47 hint; empty means auto-detect.
	Language string
}

// response is the transcription function's JSON envelope.
type response struct {
	Transcript      string `json:"transcript"`
	RawText         string `json:"raw_text"`
	Model           string `json:"model"`
	LLMCleaned      bool   `json:"llm_cleaned"`
	LLMModel        string `json:"llm_model"`
	AudioFileID     string `json:"audio_file_id"`
	TranscriptionID string `json:"transcription_id"`
	Error           string `json:"error"`
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// Client calls the hosted transcription function.
type Client struct {
	client *http.Client
}

// NewClient creates a cloud transcription client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		client: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Transcribe uploads the MP3 and returns the transcription result. creds
// should already have passed [Preflight]; server-side rejections are still
// classified so a token revoked between preflight and upload surfaces as
// an auth error.
func (c *Client) Transcribe(ctx context.Context, creds Credentials, req Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, &Error{Kind: KindRequestFailed, Message: "no audio to upload"}
	}
	if len(req.Audio) > MaxUploadBytes {
		return nil, &Error{
			Kind:    KindTooLarge,
			Message: fmt.Sprintf("recording is %d bytes, limit is %d", len(req.Audio), MaxUploadBytes),
		}
	}

	endpoint, err := buildURL(creds.FunctionURL, req)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Message: "invalid function URL", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.JWT)
	httpReq.Header.Set("Content-Type", "audio/mpeg")
	httpReq.Header.Set("X-History-Sync-Enabled", strconv.FormatBool(req.HistorySync))
	if req.SelectedText != "" {
		httpReq.Header.Set("X-Selected-Text", base64.StdEncoding.EncodeToString([]byte(req.SelectedText)))
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Message: "http request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Message: "read response", Err: err}
	}

	var decoded response
	if jsonErr := json.Unmarshal(raw, &decoded); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, &Error{Kind: KindRequestFailed, Message: "malformed response body", Err: jsonErr}
	}

	if resp.StatusCode != http.StatusOK {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if isAuthFailure(resp.StatusCode, msg) {
			return nil, &Error{Kind: KindAuthFailed, Message: msg}
		}
		return nil, &Error{
			Kind:    KindRequestFailed,
			Message: fmt.Sprintf("server returned HTTP %d: %s", resp.StatusCode, msg),
		}
	}

	return &stt.Result{
		Transcript:    stt.Normalize(decoded.Transcript),
		RawTranscript: stt.Normalize(decoded.RawText),
		SpeechModel:   decoded.Model,
		LLMCleaned:    decoded.LLMCleaned,
		LLMModel:      decoded.LLMModel,
	}, nil
}

// buildURL attaches the cleanup and context query parameters to the
// function URL.
func buildURL(functionURL string, req Request) (string, error) {
	u, err := url.Parse(functionURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("llm_cleanup", strconv.FormatBool(req.LLMCleanup))
	if req.UserContext != "" {
		q.Set("user_context", req.UserContext)
	}
	if req.Language != "" {
		q.Set("language", req.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// isAuthFailure classifies a server rejection as an authentication
// problem, either by status code or by tell-tale phrasing in the error
// body.
func isAuthFailure(status int, body string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	lower := strings.ToLower(body)
	for _, marker := range []string{"jwt", "expired", "unauthorized"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
