package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"locationcore/internal/certificate"
)

func newCertificateCmd() *cobra.Command {
	var prisonID string
	cmd := &cobra.Command{
		Use:   "certificate",
		Short: "Inspect cell certificates",
	}
	cmd.PersistentFlags().StringVar(&prisonID, "prison", "", "prison id")
	_ = cmd.MarkPersistentFlagRequired("prison")

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the current certificate of a prison as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			cert, err := certificate.NewService(a.store).Current(cmd.Context(), prisonID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cert)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "archived",
		Short: "List the archived certificate documents of a prison",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			infos, err := a.archive.List(cmd.Context(), prisonID)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	})
	return cmd
}

func newPrisonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prisons",
		Short: "List configured prisons and their certification settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			for _, id := range a.registry.Prisons() {
				required, _ := a.registry.IsCertificationApprovalRequired(cmd.Context(), id)
				soc, _ := a.registry.GetSignedOperationCapacity(cmd.Context(), id)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tapproval_required=%t\tsigned_operation_capacity=%d\n", id, required, soc)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
