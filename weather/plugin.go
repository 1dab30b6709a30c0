package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/briangreenhill/fetchkit/plugins"
)

// Plugin exposes the client as a plugins.Source.
type Plugin struct {
	client *Client
}

func NewPlugin(client *Client) *Plugin {
	return &Plugin{client: client}
}

func (p *Plugin) Name() string {
	return "weather"
}

// GetLatest reports the conditions for DefaultCity.
func (p *Plugin) GetLatest(ctx context.Context) (string, error) {
	return p.Get(ctx, DefaultCity)
}

// Get reports the conditions for city.
func (p *Plugin) Get(ctx context.Context, city string) (string, error) {
	r, err := p.client.Current(ctx, city)
	if err != nil {
		return "", err
	}
	return Format(r), nil
}

// Format renders a report as a short markdown block.
func Format(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Weather: %s\n", r.City)
	fmt.Fprintf(&b, "Temp: %.1f°\n", r.Temp)
	fmt.Fprintf(&b, "Conditions: %s\n", r.Description)
	fmt.Fprintf(&b, "Icon: %s\n", r.Icon)
	return b.String()
}

var _ plugins.Source = (*Plugin)(nil)
