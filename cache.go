package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/fetchkit/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the cache",
	}

	var asJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.providers(cmd.Context())
			if err != nil {
				return err
			}
			st := set.Cache.Stats(cmd.Context())
			w := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(w).Encode(st)
			}
			_, err = fmt.Fprintf(w, "Memory:  %d/%d\nLocal:   %d\nSession: %d\n",
				st.Memory.Size, st.Memory.MaxSize, st.Local.Size, st.Session.Size)
			return err
		},
	}
	statsCmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	var backend string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.providers(cmd.Context())
			if err != nil {
				return err
			}
			if backend == "" {
				set.Cache.Clear(cmd.Context())
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
				return err
			}
			b, ok := cache.ParseBackend(backend)
			if !ok {
				return fmt.Errorf("unknown backend %q", backend)
			}
			set.Cache.Clear(cmd.Context(), b)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s cache entries cleared.\n", b)
			return err
		},
	}
	clearCmd.Flags().StringVar(&backend, "backend", "", "only clear this backend")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.providers(cmd.Context())
			if err != nil {
				return err
			}
			n := set.Cache.Sweep(cmd.Context())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries.\n", n)
			return err
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, sweepCmd)
	return cmd
}
