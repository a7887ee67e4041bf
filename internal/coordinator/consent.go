package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/supaspectre/internal/models"
)

// TermsVersion is the terms revision a consent record must match
const TermsVersion = "1.0"

// ConsentReason is the user-facing text returned for gated requests
const ConsentReason = "Accept the Terms & Conditions to use SupaSpectre."

const keyConsent = "terms_acceptance"

// ErrConsentRequired is returned by every write before terms are accepted
var ErrConsentRequired = errors.New("terms not accepted")

// consentFree lists the message types handled without consent
var consentFree = map[models.MessageType]bool{
	models.MsgOpenSidePanel: true,
	models.MsgCloseOverlay:  true,
	models.MsgConsent:       true,
}

type consentRecord struct {
	Version    string    `json:"version"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Consented reports whether the current terms have been accepted
func (c *Coordinator) Consented() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consented
}

// RefreshConsent reloads the acceptance record from storage. A read
// failure counts as not accepted.
func (c *Coordinator) RefreshConsent(ctx context.Context) bool {
	var rec consentRecord
	found, err := c.kv.Get(ctx, keyConsent, &rec)
	if err != nil {
		c.logger.Error(err, "failed to read terms acceptance")
	}
	accepted := err == nil && found && rec.Version == TermsVersion

	c.mu.Lock()
	c.consented = accepted
	c.mu.Unlock()
	if !accepted {
		c.tabCache.Flush()
	}
	return accepted
}

// SetConsent records acceptance of the current terms or withdraws it.
// Withdrawing drops every cached tab detection.
func (c *Coordinator) SetConsent(ctx context.Context, consent models.Consent) error {
	if !consent.Accepted {
		if err := c.kv.Delete(ctx, keyConsent); err != nil {
			return fmt.Errorf("withdraw consent: %w", err)
		}
		c.mu.Lock()
		c.consented = false
		c.mu.Unlock()
		c.tabCache.Flush()
		c.logger.Info("terms acceptance withdrawn")
		return nil
	}

	version := consent.Version
	if version == "" {
		version = TermsVersion
	}
	if version != TermsVersion {
		return fmt.Errorf("unsupported terms version %q, want %q", version, TermsVersion)
	}
	rec := consentRecord{Version: version, AcceptedAt: c.now().UTC()}
	if err := c.kv.Set(ctx, keyConsent, rec); err != nil {
		return fmt.Errorf("store consent: %w", err)
	}
	c.mu.Lock()
	c.consented = true
	c.mu.Unlock()
	c.logger.V(1).Info("terms accepted", "version", version)
	return nil
}

func (c *Coordinator) requireConsent() error {
	if !c.Consented() {
		return ErrConsentRequired
	}
	return nil
}
