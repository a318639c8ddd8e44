// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/smalllogin/smalllogin/internal/tls"
	"github.com/smalllogin/smalllogin/internal/xdg"
)

const defaultCertValidity = 365 * 24 * time.Hour

// NewTLSCmd creates the tls subcommand.
func NewTLSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tls",
		Short: "Manage TLS certificates",
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed server certificate",
		Long: `Generate a self-signed certificate and key for serving over HTTPS.
Point server.tls_cert and server.tls_key (or --tls-cert and --tls-key) at
the written files. Browsers will warn about the certificate; use a real CA
for anything public.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return oops.Code("TLS_GENERATE_FAILED").Wrap(err)
			}
			hosts, err := cmd.Flags().GetStringSlice("host")
			if err != nil {
				return oops.Code("TLS_GENERATE_FAILED").Wrap(err)
			}
			validFor, err := cmd.Flags().GetDuration("valid-for")
			if err != nil {
				return oops.Code("TLS_GENERATE_FAILED").Wrap(err)
			}
			return runTLSGenerate(cmd, dir, hosts, validFor)
		},
	}
	generate.Flags().String("dir", xdg.CertsDir(), "directory to write server.crt and server.key to")
	generate.Flags().StringSlice("host", nil, "DNS name or IP the certificate is valid for (repeatable; default localhost)")
	generate.Flags().Duration("valid-for", defaultCertValidity, "certificate lifetime")
	cmd.AddCommand(generate)

	return cmd
}

func runTLSGenerate(cmd *cobra.Command, dir string, hosts []string, validFor time.Duration) error {
	cert, err := tls.GenerateServerCert(hosts, validFor)
	if err != nil {
		return oops.Code("TLS_GENERATE_FAILED").With("hosts", hosts).Wrap(err)
	}
	certPath, keyPath, err := cert.Save(dir)
	if err != nil {
		return oops.Code("TLS_GENERATE_FAILED").With("dir", dir).Wrap(err)
	}

	cmd.Printf("Certificate: %s\n", certPath)
	cmd.Printf("Key:         %s\n", keyPath)
	cmd.Printf("Valid until: %s\n", cert.Certificate.NotAfter.UTC().Format(time.RFC3339))
	return nil
}
