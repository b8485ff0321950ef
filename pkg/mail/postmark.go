package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrz1836/postmark"
)

// PostmarkAPIService is the service name that selects the Postmark HTTP API
// instead of Postmark's SMTP relay.
const PostmarkAPIService = "postmark-api"

func isPostmarkAPI(service string) bool {
	return normalizeService(service) == normalizeService(PostmarkAPIService)
}

// postmarkAPI is the subset of the Postmark client we call.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
	GetCurrentServer(ctx context.Context) (postmark.Server, error)
}

// PostmarkClient sends mail through the Postmark transactional API.
type PostmarkClient struct {
	api     postmarkAPI
	timeout time.Duration
}

// NewPostmarkClient builds a client authenticated with a server token.
func NewPostmarkClient(serverToken string, timeout time.Duration) (*PostmarkClient, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PostmarkClient{
		api:     postmark.NewClient(serverToken, ""),
		timeout: timeout,
	}, nil
}

// Verify fetches the server the token belongs to.
func (c *PostmarkClient) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.api.GetCurrentServer(ctx); err != nil {
		return errors.Join(ErrVerify, err)
	}
	return nil
}

func (c *PostmarkClient) Send(ctx context.Context, m Message) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.SendEmail(ctx, postmark.Email{
		From:     m.From,
		To:       m.To,
		Subject:  m.Subject,
		TextBody: m.Text,
	})
	if err != nil {
		return Receipt{}, errors.Join(ErrSend, err)
	}
	if resp.ErrorCode > 0 {
		return Receipt{}, errors.Join(ErrSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return Receipt{
		MessageID: resp.MessageID,
		Response:  resp.Message,
	}, nil
}
