package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/supaspectre/internal/models"
)

// Handle dispatches one validated message and reports the outcome. Messages
// other than panel, overlay and consent requests are rejected until the
// terms are accepted.
func (c *Coordinator) Handle(ctx context.Context, msg models.Message) models.Response {
	if msg == nil {
		return models.Response{OK: false, Reason: "empty message"}
	}
	if !consentFree[msg.Type()] && !c.Consented() {
		return models.Response{OK: false, Reason: ConsentReason}
	}

	switch m := msg.(type) {
	case models.SupabaseRequest:
		return respond(c.DetectSupabaseRequest(ctx, m), "Detection failed.")
	case models.AssetBody:
		res, err := c.ScanAssetBody(ctx, m)
		if err != nil {
			return failure(err, "Failed to scan asset.")
		}
		return models.Response{OK: true, Data: res}
	case models.RegisterAssetDetection:
		d, err := c.RecordAssetDetection(ctx, m.Detection)
		if err != nil {
			return failure(err, "Failed to persist detection.")
		}
		d.APIKey = ""
		return models.Response{OK: true, Data: d}
	case models.RegisterLeak:
		d, err := c.RecordLeak(ctx, m.Detection)
		if err != nil {
			return failure(err, "Failed to persist leak detection.")
		}
		return models.Response{OK: true, Data: d}
	case models.ApplyConnection:
		return respond(c.ApplyConnection(ctx, m), "Failed to apply connection.")
	case models.TabUpdated:
		return respond(c.TabUpdated(ctx, m), "Failed to update tab.")
	case models.TabRemoved:
		return respond(c.TabRemoved(ctx, m), "Failed to remove tab.")
	case models.OpenSidePanel:
		if m.TabID <= 0 {
			return models.Response{OK: false, Reason: "No tabId provided for side panel request."}
		}
		opened := c.OpenPanel(m.TabID, m.Force)
		return models.Response{OK: true, Data: map[string]bool{"opened": opened}}
	case models.CloseOverlay:
		c.CloseOverlay(m.TabID)
		return models.Response{OK: true}
	case models.Consent:
		return respond(c.SetConsent(ctx, m), "Failed to record consent.")
	case models.CreateReport:
		r, err := c.GenerateReport(ctx, m)
		if err != nil {
			return failure(err, "Failed to create report.")
		}
		return models.Response{OK: true, ID: r.ID, Data: r}
	}
	return models.Response{OK: false, Reason: fmt.Sprintf("unsupported message type %q", msg.Type())}
}

func respond(err error, fallback string) models.Response {
	if err != nil {
		return failure(err, fallback)
	}
	return models.Response{OK: true}
}

func failure(err error, fallback string) models.Response {
	if errors.Is(err, ErrConsentRequired) {
		return models.Response{OK: false, Reason: ConsentReason}
	}
	reason := err.Error()
	if reason == "" {
		reason = fallback
	}
	return models.Response{OK: false, Reason: reason}
}
