package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/fetchkit/contacts"
)

func newWeatherCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "weather [city]",
		Short: "Show current weather (cached for 10 minutes)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.providers(cmd.Context())
			if err != nil {
				return err
			}
			src, err := set.Source("weather")
			if err != nil {
				return fmt.Errorf("%w (set WEATHER_API_KEY)", err)
			}

			var out string
			if len(args) == 1 {
				out, err = src.Get(cmd.Context(), args[0])
			} else {
				out, err = src.GetLatest(cmd.Context())
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func newContactsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Query the contacts service (cached for 5 minutes)",
	}

	var (
		page, limit int
		sortField   string
		desc        bool
		name        string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := contactsClient(cmd, a)
			if err != nil {
				return err
			}

			var q contacts.Query
			if page > 0 || limit > 0 {
				q.Pagination = &contacts.Pagination{Page: max(page, 1), Limit: limit}
				if limit <= 0 {
					q.Pagination.Limit = 10
				}
			}
			if sortField != "" {
				order := contacts.Asc
				if desc {
					order = contacts.Desc
				}
				q.Sort = &contacts.Sort{Field: contacts.SortField(sortField), Order: order}
			}
			if name != "" {
				q.Filter = &contacts.Filter{Name: &name}
			}

			p, err := client.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), contacts.FormatPage(p))
			return err
		},
	}
	listCmd.Flags().IntVar(&page, "page", 0, "page number")
	listCmd.Flags().IntVar(&limit, "limit", 0, "page size")
	listCmd.Flags().StringVar(&sortField, "sort", "", "sort field: name, email, phone, subject, message or consent")
	listCmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	listCmd.Flags().StringVar(&name, "name", "", "filter by name")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := contactsClient(cmd, a)
			if err != nil {
				return err
			}
			c, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), contacts.FormatContact(c))
			return err
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func contactsClient(cmd *cobra.Command, a *app) (*contacts.Client, error) {
	set, err := a.providers(cmd.Context())
	if err != nil {
		return nil, err
	}
	if set.Contacts == nil {
		return nil, errors.New("contacts are not configured (set CONTACTS_GRAPHQL_URL)")
	}
	return set.Contacts, nil
}
