package contacts

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
	return "contacts"
}

// GetLatest renders the first page of contacts.
func (p *Plugin) GetLatest(ctx context.Context) (string, error) {
	page, err := p.client.List(ctx, Query{})
	if err != nil {
		return "", err
	}
	return FormatPage(page), nil
}

// Get renders a single contact.
func (p *Plugin) Get(ctx context.Context, id string) (string, error) {
	ct, err := p.client.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatContact(ct), nil
}

// FormatPage renders a page as a markdown table.
func FormatPage(p *Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Contacts (%d total, page %d/%d)\n", p.Total, p.Page, p.TotalPages)
	b.WriteString("| ID | Name | Email | Subject |\n")
	b.WriteString("|----|------|-------|---------|\n")
	for _, c := range p.Contacts {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", c.ID, c.Name, c.Email, c.Subject)
	}
	return b.String()
}

func FormatContact(c *Contact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", c.Name)
	fmt.Fprintf(&b, "ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Email: %s\n", c.Email)
	fmt.Fprintf(&b, "Phone: %s\n", c.Phone)
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Consent: %t\n", c.Consent)
	if c.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", c.Message)
	}
	return b.String()
}

var _ plugins.Source = (*Plugin)(nil)
