package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"certledger/internal/app"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
)

func ownerCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "owner <address>",
		Short: "List the certificates held by an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				certs, err := a.Service.FetchByOwner(ctx, args[0], fetchOptions(refresh)...)
				if err != nil {
					return err
				}
				return printCertificates(cmd.OutOrStdout(), certs)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the certificate cache")
	return cmd
}

func recentCommand() *cobra.Command {
	var (
		limit   int
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently issued certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				certs, err := a.Service.FetchRecent(ctx, limit, fetchOptions(refresh)...)
				if err != nil {
					return err
				}
				return printCertificates(cmd.OutOrStdout(), certs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of certificates (0 uses the configured default)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the certificate cache")
	return cmd
}

func showCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				cert, err := a.Service.Get(ctx, args[0], refresh)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cert)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read the ledger instead of the cache")
	return cmd
}

func revokeCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a certificate on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return errors.New("--reason is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.RevokeByID(ctx, args[0], reason)
				if err != nil {
					return err
				}
				if globalFlags.json {
					return printJSON(cmd.OutOrStdout(), res)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked certificate %s (tx %s)\n", res.Certificate.ID, res.TxHash)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "revocation reason recorded on the ledger")
	return cmd
}

func fetchOptions(refresh bool) []service.FetchOption {
	if refresh {
		return []service.FetchOption{service.BypassCache()}
	}
	return nil
}

func printCertificates(w io.Writer, certs []models.Certificate) error {
	if globalFlags.json {
		return printJSON(w, certs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUNIQUE ID\tCOURSE\tSTUDENT\tCOMPLETED\tSTATUS")
	for _, c := range certs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.UniqueID, c.CourseName, c.Student, c.CompletionDate, c.Status())
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
