package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penshort/deeplink/pkg/attribution"
	"github.com/penshort/deeplink/pkg/fingerprint"
	"github.com/penshort/deeplink/pkg/metrics"
)

var errVerifyTimeout = errors.New("timed out waiting for attribution")

func newFingerprintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the device fingerprint sent to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fp := fingerprint.Build()
			return printJSON(cmd.OutOrStdout(), struct {
				fingerprint.Fingerprint
				Hash string `json:"hash"`
			}{fp, fp.Hash()})
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Exchange the fingerprint for first-session status and a deferred link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recorder := metrics.NewInMemory()

			c, cleanup, err := a.coordinator(ctx, recorder)
			if err != nil {
				return err
			}
			defer cleanup()

			type result struct {
				data *attribution.AttributionData
				err  error
			}
			results := make(chan result, 1)
			c.Configure(a.cfg.AttributionMode(), func(data *attribution.AttributionData, err error) {
				results <- result{data: data, err: err}
			})

			ctx, cancel := context.WithTimeout(ctx, a.verifyTimeout())
			defer cancel()

			select {
			case res := <-results:
				if res.err != nil {
					return res.err
				}
				a.logger.Debug("verify metrics", "snapshot", recorder.Snapshot())
				return printJSON(cmd.OutOrStdout(), res.data)
			case <-ctx.Done():
				return errVerifyTimeout
			}
		},
	}
}

func newTrackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "track <url>",
		Short: "Parse an inbound link into attribution data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil || u.Scheme == "" {
				return fmt.Errorf("%w: %q", attribution.ErrInvalidURL, args[0])
			}

			tracker, closeStore, err := a.tracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			data := attribution.Parse(attribution.ParseInput{
				URL:            u,
				IsFirstSession: tracker.Load(cmd.Context()),
			})
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

type linkFlags struct {
	path              string
	name              string
	description       string
	socialTitle       string
	socialDescription string
	socialImage       string
	utmSource         string
	utmMedium         string
	utmCampaign       string
	utmTerm           string
	utmContent        string
	params            []string
}

func newCreateLinkCmd(a *app) *cobra.Command {
	var f linkFlags

	cmd := &cobra.Command{
		Use:   "create-link",
		Short: "Create an attributed link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.configuration(cmd)
			if err != nil {
				return err
			}

			c, cleanup, err := a.coordinator(cmd.Context(), metrics.NewNoop())
			if err != nil {
				return err
			}
			defer cleanup()

			u, err := c.CreateLink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.String())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.path, "path", "", "in-app destination path (required)")
	flags.StringVar(&f.name, "name", "", "link identifier (required)")
	flags.StringVar(&f.description, "description", "", "link description")
	flags.StringVar(&f.socialTitle, "title", "", "social preview title")
	flags.StringVar(&f.socialDescription, "social-description", "", "social preview description")
	flags.StringVar(&f.socialImage, "image", "", "social preview image URL")
	flags.StringVar(&f.utmSource, "utm-source", "", "marketing source")
	flags.StringVar(&f.utmMedium, "utm-medium", "", "marketing medium")
	flags.StringVar(&f.utmCampaign, "utm-campaign", "", "marketing campaign")
	flags.StringVar(&f.utmTerm, "utm-term", "", "marketing term")
	flags.StringVar(&f.utmContent, "utm-content", "", "marketing content")
	flags.StringArrayVar(&f.params, "param", nil, "custom parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// configuration builds a LinkConfiguration from the flags that were set.
func (f *linkFlags) configuration(cmd *cobra.Command) (*attribution.LinkConfiguration, error) {
	cfg := attribution.NewLinkConfiguration(f.path, f.name)

	setters := []struct {
		flag  string
		value string
		set   func(string) *attribution.LinkConfiguration
	}{
		{"description", f.description, cfg.WithDescription},
		{"title", f.socialTitle, cfg.WithSocialTitle},
		{"social-description", f.socialDescription, cfg.WithSocialDescription},
		{"image", f.socialImage, cfg.WithSocialImageURL},
		{"utm-source", f.utmSource, cfg.WithMarketingSource},
		{"utm-medium", f.utmMedium, cfg.WithMarketingMedium},
		{"utm-campaign", f.utmCampaign, cfg.WithMarketingCampaign},
		{"utm-term", f.utmTerm, cfg.WithMarketingTerm},
		{"utm-content", f.utmContent, cfg.WithMarketingContent},
	}
	for _, s := range setters {
		if cmd.Flags().Changed(s.flag) {
			s.set(s.value)
		}
	}

	for _, raw := range f.params {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: --param %q must be key=value", attribution.ErrInvalidConfiguration, raw)
		}
		cfg.SetParameter(strings.TrimSpace(key), value)
	}

	return cfg, nil
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the first-session marker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeStore, err := a.tracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			tracker.Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "first-session marker cleared")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
