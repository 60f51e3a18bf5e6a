package licensing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"desktop-license-server/internal/database"
	"desktop-license-server/internal/license"
)

// Advisory types
const (
	AdvisoryLowBalance        = "low_balance"
	AdvisoryTrialEnding       = "trial_ending"
	AdvisoryUsageLimitReached = "usage_limit_reached"
	AdvisoryUpdateAvailable   = "update_available"
)

// Advisory is an informational message returned on heartbeat
type Advisory struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // info, warning
	Message  string `json:"message"`
}

type advisoryInput struct {
	userID     string
	licenseID  string
	license    *database.License // already loaded, e.g. by the usage increment
	managedAI  bool
	platform   string
	arch       string
	appVersion string
}

// advisories runs each lookup concurrently under a shared timeout. A failed
// lookup only drops its own messages; the result is never an error.
func (s *Service) advisories(ctx context.Context, in advisoryInput) []Advisory {
	ctx, cancel := context.WithTimeout(ctx, s.settings.AdvisoryTimeout)
	defer cancel()

	var licenseMsgs, walletMsgs, updateMsgs []Advisory
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		licenseMsgs = s.licenseAdvisories(gctx, in)
		return nil
	})
	if in.managedAI && s.wallets != nil {
		g.Go(func() error {
			walletMsgs = s.walletAdvisories(gctx, in.userID)
			return nil
		})
	}
	if s.catalog != nil && in.arch != "" && in.appVersion != "" {
		g.Go(func() error {
			updateMsgs = s.updateAdvisories(in)
			return nil
		})
	}
	_ = g.Wait()

	messages := make([]Advisory, 0, len(licenseMsgs)+len(walletMsgs)+len(updateMsgs))
	messages = append(messages, licenseMsgs...)
	messages = append(messages, walletMsgs...)
	messages = append(messages, updateMsgs...)
	return messages
}

func (s *Service) licenseAdvisories(ctx context.Context, in advisoryInput) []Advisory {
	lic := in.license
	if lic == nil {
		var err error
		lic, err = s.licenses.GetLicenseByID(ctx, in.licenseID)
		if err != nil {
			s.recorder.AdvisoryFailed("license")
			s.log(ctx).Warn().Err(err).Str("license_id", in.licenseID).Msg("License advisory lookup failed")
			return nil
		}
		if lic == nil {
			return nil
		}
	}

	var out []Advisory
	if lic.UsageLimitReached {
		out = append(out, Advisory{
			Type:     AdvisoryUsageLimitReached,
			Severity: "warning",
			Message:  "You have reached the usage limit of your plan. Upgrade to keep using managed AI.",
		})
	}
	if lic.LicenseStatus() == license.StatusTrial && lic.TrialEndsAt != nil {
		remaining := lic.TrialEndsAt.Sub(s.now())
		if remaining > 0 && remaining <= s.settings.TrialEndingWindow {
			out = append(out, Advisory{
				Type:     AdvisoryTrialEnding,
				Severity: "info",
				Message:  fmt.Sprintf("Your trial ends in %s.", humanDuration(remaining)),
			})
		}
	}
	return out
}

func (s *Service) walletAdvisories(ctx context.Context, userID string) []Advisory {
	wallet, err := s.wallets.GetWalletByUserID(ctx, userID)
	if err != nil {
		s.recorder.AdvisoryFailed("wallet")
		s.log(ctx).Warn().Err(err).Str("user_id", userID).Msg("Wallet advisory lookup failed")
		return nil
	}
	if wallet == nil || wallet.Balance >= s.settings.LowBalanceThreshold {
		return nil
	}
	return []Advisory{{
		Type:     AdvisoryLowBalance,
		Severity: "warning",
		Message:  fmt.Sprintf("Your balance is low (%.2f %s). Top up to avoid interruptions.", wallet.Balance, wallet.Currency),
	}}
}

func (s *Service) updateAdvisories(in advisoryInput) []Advisory {
	update, ok := s.catalog.Lookup(in.platform, in.arch, in.appVersion)
	if !ok || update.UpToDate || update.Latest == nil {
		return nil
	}
	severity := "info"
	if update.Mandatory {
		severity = "warning"
	}
	return []Advisory{{
		Type:     AdvisoryUpdateAvailable,
		Severity: severity,
		Message:  fmt.Sprintf("Version %s is available.", update.Latest.Version),
	}}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return "less than 2 hours"
	}
}
