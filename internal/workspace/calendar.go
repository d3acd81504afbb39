package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/crewdesk/crewdesk/internal/log"
)

// CalendarRef is one entry of the user's calendar list.
type CalendarRef struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

// Event is a calendar event in wire form.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location,omitempty"`
	ProjectName string `json:"projectName"`
	HTMLLink    string `json:"htmlLink,omitempty"`
}

// EventInput is the request to create an event.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Notify      bool
	ProjectName string
	CalendarID  string
}

// EnsureProjectCalendar finds or creates the calendar named after a project,
// adds it to the user's calendar list, and makes it publicly readable so it
// can be embedded. A 409 from the ACL insert means already shared and is
// ignored.
func (s *Service) EnsureProjectCalendar(ctx context.Context, name string) (string, error) {
	calID, err := s.findCalendar(ctx, name)
	if err != nil {
		return "", err
	}
	if calID == "" {
		cal, err := s.gw.Calendar.Calendars.Insert(&calendar.Calendar{Summary: name}).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to create calendar: %w", err)
		}
		calID = cal.Id
	}

	if _, err := s.gw.Calendar.CalendarList.Insert(&calendar.CalendarListEntry{Id: calID}).Context(ctx).Do(); err != nil {
		log.LogDebug("Calendar list insert for %s: %v", calID, err)
	}

	_, err = s.gw.Calendar.Acl.Insert(calID, &calendar.AclRule{
		Role:  "reader",
		Scope: &calendar.AclRuleScope{Type: "default"},
	}).Context(ctx).Do()
	if err != nil && !isStatus(err, http.StatusConflict) {
		return calID, fmt.Errorf("failed to make calendar public: %w", err)
	}
	return calID, nil
}

// findCalendar looks for a calendar with the given summary in the user's
// calendar list.
func (s *Service) findCalendar(ctx context.Context, summary string) (string, error) {
	list, err := s.gw.Calendar.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}
	for _, item := range list.Items {
		if item.Summary == summary {
			return item.Id, nil
		}
	}
	return "", nil
}

// Calendars lists the user's calendars.
func (s *Service) Calendars(ctx context.Context) ([]CalendarRef, error) {
	list, err := s.gw.Calendar.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	refs := make([]CalendarRef, 0, len(list.Items))
	for _, item := range list.Items {
		refs = append(refs, CalendarRef{ID: item.Id, Summary: item.Summary, Primary: item.Primary})
	}
	return refs, nil
}

// DeleteCalendar removes a calendar entirely.
func (s *Service) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := s.gw.Calendar.Calendars.Delete(calendarID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	return nil
}

// AddEvent inserts an event. The target calendar is, in order: the explicit
// calendar ID, the project calendar (by project name), or the primary
// calendar. The project name rides along as a private extended property so
// range queries can filter by project.
func (s *Service) AddEvent(ctx context.Context, in EventInput) (*Event, error) {
	event := &calendar.Event{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"projectName": in.ProjectName},
		},
	}
	if in.Notify {
		event.Reminders = &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 30},
				{Method: "popup", Minutes: 10},
			},
		}
	}

	calendarID := in.CalendarID
	if calendarID == "" && in.ProjectName != "" {
		calendarID = in.ProjectName
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	created, err := s.gw.Calendar.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to add event: %w", err)
	}
	return &Event{
		ID:          created.Id,
		Summary:     created.Summary,
		Start:       in.Start.Format(time.RFC3339),
		End:         in.End.Format(time.RFC3339),
		ProjectName: in.ProjectName,
		HTMLLink:    created.HtmlLink,
	}, nil
}

// Events lists events in a time range. When the project calendar does not
// exist (404), the primary calendar is queried instead and fallback is true
// so the client can tell the user.
func (s *Service) Events(ctx context.Context, start, end time.Time, projectName, calendarID string) ([]Event, bool, error) {
	if calendarID == "" && projectName != "" {
		calendarID = projectName
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	events, err := s.listEvents(ctx, calendarID, start, end, projectName)
	if err == nil {
		return events, false, nil
	}
	if calendarID != "primary" && isStatus(err, http.StatusNotFound) {
		events, err = s.listEvents(ctx, "primary", start, end, projectName)
		if err != nil {
			return nil, false, err
		}
		return events, true, nil
	}
	return nil, false, err
}

func (s *Service) listEvents(ctx context.Context, calendarID string, start, end time.Time, projectName string) ([]Event, error) {
	call := s.gw.Calendar.Events.List(calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(100)
	if projectName != "" {
		call = call.PrivateExtendedProperty("projectName=" + projectName)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, ev := range resp.Items {
		events = append(events, Event{
			ID:          ev.Id,
			Summary:     ev.Summary,
			Description: ev.Description,
			Start:       eventTime(ev.Start),
			End:         eventTime(ev.End),
			Location:    ev.Location,
			ProjectName: eventProjectName(ev),
		})
	}
	return events, nil
}

func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

func eventProjectName(ev *calendar.Event) string {
	if ev.ExtendedProperties == nil {
		return ""
	}
	return ev.ExtendedProperties.Private["projectName"]
}

// isStatus reports whether err is a Google API error with the given HTTP
// status.
func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
