package gmail

import (
	"context"
	"fmt"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"mailcensus/internal/model"
)

// defaultPageSize is the Gmail list page size, not an overall cap.
const defaultPageSize = 500

// Source adapts the Gmail API to the ingest.Source contract. Calls are
// strictly sequential; rate limiting is left to the API client's transport.
type Source struct {
	svc              *gmailv1.Service
	user             string
	pageSize         int64
	includeSpamTrash bool
}

func NewSource(svc *gmailv1.Service, pageSize int64, includeSpamTrash bool) *Source {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Source{
		svc:              svc,
		user:             "me",
		pageSize:         pageSize,
		includeSpamTrash: includeSpamTrash,
	}
}

// ListPage fetches one page of message ids. An empty nextToken means the
// account's message list is exhausted.
func (s *Source) ListPage(ctx context.Context, pageToken string) ([]string, string, error) {
	call := s.svc.Users.Messages.List(s.user).
		IncludeSpamTrash(s.includeSpamTrash).
		MaxResults(s.pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// Metadata fetches the From and Subject headers plus label ids for one
// message, using format=metadata so bodies are never transferred.
func (s *Source) Metadata(ctx context.Context, id string) (model.MessageMeta, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return model.MessageMeta{}, fmt.Errorf("get message %s: %w", id, err)
	}

	meta := model.MessageMeta{Labels: msg.LabelIds}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				meta.From = h.Value
			case "subject":
				meta.Subject = h.Value
			}
		}
	}
	return meta, nil
}
