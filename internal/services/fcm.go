package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"tawsil-backend/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// TokenSource lists the push tokens that should receive a new-order offer.
type TokenSource interface {
	OfferTokens(ctx context.Context) ([]string, error)
}

// FCMService pushes new-order offers to driver devices that are not currently
// holding a live dispatch-channel connection.
type FCMService struct {
	client *messaging.Client
	tokens TokenSource
}

// NewFCMService creates a new FCM service instance from a credentials file.
func NewFCMService(credentialsFile string, tokens TokenSource) (*FCMService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, tokens: tokens}, nil
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded
// credentials. Useful for cloud deployments where you can't upload files easily.
func NewFCMServiceFromBase64(credentialsBase64 string, tokens TokenSource) (*FCMService, error) {
	ctx := context.Background()

	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, tokens: tokens}, nil
}

// PushNewOrder offers a freshly submitted order to every eligible driver
// device. Best effort: a failed push never blocks order intake, and drivers
// with a live websocket get the same offer over the channel anyway.
func (s *FCMService) PushNewOrder(ctx context.Context, summary models.Summary) {
	tokens, err := s.tokens.OfferTokens(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load driver push tokens: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	sent := 0
	for _, token := range tokens {
		message := &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: "New delivery available!",
				Body:  fmt.Sprintf("%s to %s. Open the app to accept.", summary.ItemType, summary.Address),
			},
			Data: map[string]string{
				"type":         "new-order",
				"order_number": summary.OrderNumber,
			},
		}

		if _, err := s.client.Send(ctx, message); err != nil {
			log.Printf("⚠️  Failed to push offer to a driver device: %v", err)
			continue
		}
		sent++
	}

	log.Printf("📤 Pushed new-order offer %s to %d driver device(s)", summary.OrderNumber, sent)
}
