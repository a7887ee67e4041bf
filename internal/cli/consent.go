package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/config"
	"github.com/ppiankov/supaspectre/internal/coordinator"
	"github.com/ppiankov/supaspectre/internal/models"
)

var (
	consentAccept   bool
	consentWithdraw bool
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Accept or withdraw the terms of use",
	Long: `SupaSpectre only records detections and probes tables after the terms
of use are accepted. Acceptance is written to the config file as
consent_accepted and to the detection store shared with the bridge.

Example:
  supaspectre consent --accept
  supaspectre consent --withdraw
  supaspectre consent`,
	RunE: runConsent,
}

func init() {
	consentCmd.Flags().BoolVar(&consentAccept, "accept", false, "accept the terms of use")
	consentCmd.Flags().BoolVar(&consentWithdraw, "withdraw", false, "withdraw acceptance")
	consentCmd.MarkFlagsMutuallyExclusive("accept", "withdraw")
}

func consentAccepted() models.Consent {
	return models.Consent{Accepted: true, Version: coordinator.TermsVersion}
}

func runConsent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !consentAccept && !consentWithdraw {
		rt, err := openRuntime(ctx, true)
		if err != nil {
			return err
		}
		if rt.coord.Consented() {
			fmt.Fprintf(out, "Terms %s accepted.\n", coordinator.TermsVersion)
		} else {
			fmt.Fprintln(out, "Terms not accepted. Run 'supaspectre consent --accept'.")
		}
		return nil
	}

	path := configFile
	if path == "" {
		path = config.ConfigPath()
	}
	if err := config.WriteConsent(consentAccept, path); err != nil {
		return err
	}
	cfg.ConsentAccepted = consentAccept

	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	if err := rt.coord.SetConsent(ctx, models.Consent{Accepted: consentAccept, Version: coordinator.TermsVersion}); err != nil {
		return err
	}

	if consentAccept {
		fmt.Fprintf(out, "Terms %s accepted.\n", coordinator.TermsVersion)
	} else {
		fmt.Fprintln(out, "Terms acceptance withdrawn.")
	}
	fmt.Fprintf(out, "Config written to %s\n", path)
	return nil
}
