package workspace

import (
	"context"
	"fmt"
)

// Email is the inbox summary returned to the dashboard.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// InboxEmails returns From/Subject/Date for the most recent inbox messages.
// Only metadata is requested; message bodies never leave Gmail.
func (s *Service) InboxEmails(ctx context.Context, max int64) ([]Email, error) {
	if max <= 0 {
		max = 10
	}

	list, err := s.gw.Gmail.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox messages: %w", err)
	}

	emails := make([]Email, 0, len(list.Messages))
	for _, msg := range list.Messages {
		full, err := s.gw.Gmail.Users.Messages.Get("me", msg.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", msg.Id, err)
		}

		var email Email
		if full.Payload != nil {
			for _, h := range full.Payload.Headers {
				switch h.Name {
				case "From":
					email.From = h.Value
				case "Subject":
					email.Subject = h.Value
				case "Date":
					email.Date = h.Value
				}
			}
		}
		emails = append(emails, email)
	}
	return emails, nil
}
