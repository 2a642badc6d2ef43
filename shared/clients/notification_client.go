package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"familyportal-backend/shared/database/models/notification"
)

// InternalTokenHeader carries the shared secret on service-to-service calls
const InternalTokenHeader = "X-Internal-Token"

// NotificationClient handles communication with notification service
type NotificationClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewNotificationClient creates a new notification client
func NewNotificationClient(baseURL, internalToken string, log *zap.Logger) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		token:   internalToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// DispatchRequest is the body of POST /api/notifications/dispatch
type DispatchRequest struct {
	UserIDs []uuid.UUID                   `json:"user_ids" binding:"required"`
	Type    notification.NotificationType `json:"type" binding:"required"`
	Payload notification.Payload          `json:"payload" binding:"required"`
}

// Dispatch hands an event to the notification service. The service accepts
// the request and fans out in the background, so a nil error only means the
// event was queued.
func (nc *NotificationClient) Dispatch(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) error {
	if len(userIDs) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(DispatchRequest{UserIDs: userIDs, Type: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/notifications/dispatch", nc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(InternalTokenHeader, nc.token)

	resp, err := nc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification service returned status: %d", resp.StatusCode)
	}

	return nil
}

// DispatchAsync sends the event without blocking the caller. Failures are
// logged only.
func (nc *NotificationClient) DispatchAsync(userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				nc.log.Error("panic in notification dispatch", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), nc.httpClient.Timeout)
		defer cancel()

		if err := nc.Dispatch(ctx, userIDs, kind, payload); err != nil {
			nc.log.Warn("notification dispatch failed",
				zap.String("type", string(kind)),
				zap.Int("recipients", len(userIDs)),
				zap.Error(err))
		}
	}()
}
