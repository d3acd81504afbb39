// Package gateway builds per-request Google API service clients bound to one
// session's token. Services are constructed fresh for each request so a
// token refresh between requests is always picked up; nothing here caches
// credentials.
package gateway

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/crewdesk/crewdesk/internal/session"
)

// Services bundles the Google API clients for one request.
type Services struct {
	Drive    *drive.Service
	Docs     *docs.Service
	Sheets   *sheets.Service
	Calendar *calendar.Service
	Gmail    *gmail.Service
}

// Factory builds Services for a token set. Defined as a type so handlers can
// be tested with a stub that records whether it was called at all.
type Factory func(ctx context.Context, ts *session.TokenSet) (*Services, error)

// New constructs API clients authenticated with the given token set. Extra
// options come last so tests can redirect the clients at a local stub.
func New(ctx context.Context, ts *session.TokenSet, extra ...option.ClientOption) (*Services, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: ts.AccessToken,
		TokenType:   "Bearer",
	})
	opts := append([]option.ClientOption{option.WithTokenSource(source)}, extra...)

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docs client: %w", err)
	}
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets client: %w", err)
	}
	calendarSvc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar client: %w", err)
	}
	gmailSvc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}

	return &Services{
		Drive:    driveSvc,
		Docs:     docsSvc,
		Sheets:   sheetsSvc,
		Calendar: calendarSvc,
		Gmail:    gmailSvc,
	}, nil
}
