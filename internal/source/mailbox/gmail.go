package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const me = "me"

// inbox is the slice of the Gmail API the adapter needs.
type inbox struct {
	users *gmail.UsersMessagesService
}

func newInbox(ctx context.Context, hc *http.Client, endpoint string) (*inbox, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: %w", err)
	}
	return &inbox{users: svc.Users.Messages}, nil
}

func (b *inbox) list(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := b.users.List(me).Q(query).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: list: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m != nil && m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

// raw fetches an RFC 5322 message.
func (b *inbox) raw(ctx context.Context, id string) ([]byte, error) {
	m, err := b.users.Get(me, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: get %s: %w", id, err)
	}
	data, err := decodeRaw(m.Raw)
	if err != nil {
		return nil, fmt.Errorf("gmail: decode message %s: %w", id, err)
	}
	return data, nil
}

// decodeRaw accepts base64url with or without padding.
func decodeRaw(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
