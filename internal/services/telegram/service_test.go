package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.TelegramConfig {
	return models.TelegramConfig{
		BotToken: "123456:ABC-DEF",
		ChatID:   "-100123456789",
	}
}

func TestSendNotification_Success(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedRequest = req
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":true}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success:     true,
		Host:        "tower",
		Destination: "/mnt/user/backups/stacks",
		StartTime:   time.Now().Add(-5 * time.Minute),
		Duration:    5 * time.Minute,
		ArchiveName: "backup_2026-01-02_03-04.tar.gz",
		StackCount:  4,
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)

	// Verify request
	assert.Equal(t, http.MethodPost, capturedRequest.Method)
	assert.Contains(t, capturedRequest.URL.String(), "/bot123456:ABC-DEF/sendMessage")
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))

	// Verify body
	assert.Equal(t, "-100123456789", capturedBody.ChatID)
	assert.Equal(t, "HTML", capturedBody.ParseMode)
	assert.Contains(t, capturedBody.Text, "Stack Backup Successful")
}

func TestSendNotification_FailureMessage(t *testing.T) {
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success:      false,
		Host:         "tower",
		Destination:  "/mnt/user/backups/stacks",
		StartTime:    time.Now(),
		Duration:     1 * time.Minute,
		FailedStep:   "backup",
		ErrorMessage: "no stacks found: /boot/config/plugins/stackguard/projects",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)

	// Verify message content
	assert.Contains(t, capturedBody.Text, "Backup Failed")
	assert.Contains(t, capturedBody.Text, "Failed step")
	assert.Contains(t, capturedBody.Text, "no stacks found")
}

func TestSendNotification_HTTPError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("network error")
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to send request")
}

func TestSendNotification_APIError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":false}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "status 400")
}

func TestSendNotification_APIErrorDescription(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendNotification(context.Background(), testConfig(), models.TelegramMessage{Success: true})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.EqualError(t, result.Error, "telegram API returned status 400: Bad Request: chat not found")
}

func TestFormatMessage_Success(t *testing.T) {
	svc := New(testLogger())

	msg := models.TelegramMessage{
		Success:         true,
		Host:            "tower",
		Destination:     "/mnt/user/backups/stacks",
		StartTime:       time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC),
		Duration:        42 * time.Second,
		ArchiveName:     "backup_2026-01-15_03-00.tar.gz",
		SizeHuman:       "1.5 MB",
		StackCount:      7,
		ArchivesRemoved: 1,
		ArchivesKept:    5,
	}

	result := svc.formatMessage(msg)

	assert.Contains(t, result, "Stack Backup Successful")
	assert.Contains(t, result, "tower")
	assert.Contains(t, result, "/mnt/user/backups/stacks")
	assert.Contains(t, result, "2026-01-15 03:00:00")
	assert.Contains(t, result, "42s")
	assert.Contains(t, result, "<code>backup_2026-01-15_03-00.tar.gz</code>")
	assert.Contains(t, result, "Size: 1.5 MB")
	assert.Contains(t, result, "Stacks: 7")
	assert.Contains(t, result, "Archives kept: 5")
	assert.Contains(t, result, "Archives removed: 1")
}

func TestFormatMessage_SuccessWithoutRetention(t *testing.T) {
	svc := New(testLogger())

	result := svc.formatMessage(models.TelegramMessage{
		Success:     true,
		ArchiveName: "backup_2026-01-15_03-00.tar.gz",
	})

	assert.NotContains(t, result, "Retention")
}

func TestFormatMessage_Failure(t *testing.T) {
	svc := New(testLogger())

	msg := models.TelegramMessage{
		Success:      false,
		Host:         "tower",
		Destination:  "/mnt/user/backups/stacks",
		StartTime:    time.Now(),
		Duration:     1 * time.Minute,
		FailedStep:   "backup",
		ErrorMessage: "tar exited with code 2: tar: web/<x>: Cannot open",
	}

	result := svc.formatMessage(msg)

	assert.Contains(t, result, "Stack Backup Failed")
	assert.Contains(t, result, "Failed step: backup")
	assert.Contains(t, result, "tar: web/&lt;x&gt;: Cannot open")
	assert.NotContains(t, result, "Archive:")
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"<script>", "&lt;script&gt;"},
		{"a & b", "a &amp; b"},
		{"<>&", "&lt;&gt;&amp;"},
		{"normal text", "normal text"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeHTML(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSendNotification_ContextCancelled(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, context.Canceled
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(ctx, testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
