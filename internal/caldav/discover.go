package caldav

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/emersion/go-webdav/caldav"
)

// Destination describes what the store reports for one destination principal.
type Destination struct {
	Name      string
	HomeSet   string
	Calendars []string // calendar collection paths
	Found     bool     // whether the configured calendar is among them
}

// Discover logs in as destination and lists its calendars. Principal
// discovery is tried first; servers that do not support it are queried at
// the conventional calendars/<destination>/ home.
func (u *Uploader) Discover(ctx context.Context, destination string) (*Destination, error) {
	client, err := caldav.NewClient(u.httpClient(destination), u.baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	homeSet := u.homeSet(ctx, client, destination)
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars for %s: %w", destination, err)
	}

	d := &Destination{Name: destination, HomeSet: homeSet}
	for _, cal := range calendars {
		d.Calendars = append(d.Calendars, cal.Path)
		if cal.Name == u.calendar || path.Base(strings.TrimSuffix(cal.Path, "/")) == u.calendar {
			d.Found = true
		}
	}
	return d, nil
}

func (u *Uploader) homeSet(ctx context.Context, client *caldav.Client, destination string) string {
	fallback := u.baseURL.JoinPath("calendars", destination).Path + "/"

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		u.logger.Debug("Principal discovery failed, using conventional home", "destination", destination, "error", err)
		return fallback
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		u.logger.Debug("Home set discovery failed, using conventional home", "destination", destination, "error", err)
		return fallback
	}
	return homeSet
}
