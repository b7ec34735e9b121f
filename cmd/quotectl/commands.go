package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/airtable"
	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/quotes"
	"github.com/Simplici0/quotewizard/internal/tenant"
	"github.com/Simplici0/quotewizard/internal/tenantconfig"
)

func calculateCmd(newLogger func(*cobra.Command) *zap.Logger) *cobra.Command {
	var configPath, answersPath, format string

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Price an answer document against a tenant configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "text" {
				return fmt.Errorf("unknown format %q (use json or text)", format)
			}
			log := newLogger(cmd)
			defer func() { _ = log.Sync() }()

			doc, problems, err := tenantconfig.LoadDocument(configPath)
			if err != nil {
				return err
			}
			for _, p := range problems {
				log.Warn("config entry dropped", zap.Error(p))
			}
			form, err := readAnswers(answersPath)
			if err != nil {
				return err
			}

			quote := pricing.NewEngine(log).CalculateQuote(form, doc.Pricing, doc.Services)

			out := cmd.OutOrStdout()
			if format == "text" {
				return quotes.WriteText(out, pricing.NewAnswers(form).Contact(), quote)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(quote)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "tenant configuration YAML file")
	cmd.Flags().StringVarP(&answersPath, "answers", "a", "", "answers JSON file")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, text)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a tenant configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, problems, err := tenantconfig.LoadDocument(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range problems {
				fmt.Fprintf(out, "invalid: %v\n", p)
			}
			fmt.Fprintf(out, "%d services, %d pricing rules, %d form fields\n",
				len(doc.Services), len(doc.Pricing), len(doc.FormFields))
			if len(problems) > 0 {
				return fmt.Errorf("%d invalid entries", len(problems))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "tenant configuration YAML file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func exportCmd(newLogger func(*cobra.Command) *zap.Logger) *cobra.Command {
	var baseID, outPath, apiURL string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a tenant's Airtable configuration to a YAML file",
		Long: `Reads the Pricing, Services and Form Fields tables of an Airtable base and writes
them as a tenant configuration file. The API key is read from AIRTABLE_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("AIRTABLE_API_KEY")
			if apiKey == "" {
				return errors.New("AIRTABLE_API_KEY is not set")
			}
			log := newLogger(cmd)
			defer func() { _ = log.Sync() }()

			src := tenantconfig.NewAirtableSource(airtable.NewClient(apiURL, apiKey, nil), log)
			t := tenant.Tenant{ID: baseID, AirtableBaseID: baseID}
			ctx := cmd.Context()

			var doc tenantconfig.Document
			var err error
			if doc.Services, err = src.Services(ctx, t); err != nil {
				return err
			}
			if doc.Pricing, err = src.Rules(ctx, t); err != nil {
				return err
			}
			if doc.FormFields, err = src.FormFields(ctx, t); err != nil {
				return err
			}
			if err := tenantconfig.WriteDocument(outPath, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d services, %d pricing rules, %d form fields\n",
				outPath, len(doc.Services), len(doc.Pricing), len(doc.FormFields))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseID, "base", "", "Airtable base id")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output YAML file")
	cmd.Flags().StringVar(&apiURL, "api-url", airtable.DefaultBaseURL, "Airtable API root")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
