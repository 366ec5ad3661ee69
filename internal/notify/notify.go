package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/dev-tams/dbbackup/internal/config"
)

// Statuses of a finished backup.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is the payload sent for every finished backup.
type Event struct {
	DB       string `json:"db"`
	Engine   string `json:"engine"`
	Status   string `json:"status"`
	Bytes    int64  `json:"bytes"`
	Dest     string `json:"dest"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// builders maps a notification type to the constructor of its notifier.
var builders = map[string]func(config.NotificationDetails) (Notifier, error){
	"webhook": func(c config.NotificationDetails) (Notifier, error) {
		return NewWebhook(c.URL, c.Headers)
	},
}

// onValues maps the words accepted in "on" to the statuses they select.
var onValues = map[string][]string{
	"success": {StatusSuccess},
	"failure": {StatusFailure},
	"both":    {StatusSuccess, StatusFailure},
}

// Dispatcher fans an event out to the notifiers subscribed to its status.
type Dispatcher struct {
	subs []subscription
}

type subscription struct {
	statuses map[string]bool
	notifier Notifier
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	d := &Dispatcher{subs: make([]subscription, 0, len(cfgs))}
	for i, n := range cfgs {
		statuses, err := parseOn(n.On)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}

		typ := strings.ToLower(strings.TrimSpace(n.Type))
		build, ok := builders[typ]
		if !ok {
			return nil, fmt.Errorf("notifications[%d]: unsupported notification type %q", i, n.Type)
		}
		nf, err := build(n.Config)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d] %s: %w", i, typ, err)
		}
		d.subs = append(d.subs, subscription{statuses: statuses, notifier: nf})
	}
	return d, nil
}

// Notify sends event to every subscriber of its status. A failing notifier
// doesn't stop the others; all errors are returned together.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}

	var errs *multierror.Error
	for i, s := range d.subs {
		if !s.statuses[event.Status] {
			continue
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("notification route %d: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}

func parseOn(raw []string) (map[string]bool, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("on must include success, failure, or both")
	}
	statuses := make(map[string]bool, 2)
	for _, v := range raw {
		selected, ok := onValues[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return nil, fmt.Errorf("on contains unsupported value %q", v)
		}
		for _, st := range selected {
			statuses[st] = true
		}
	}
	return statuses, nil
}
