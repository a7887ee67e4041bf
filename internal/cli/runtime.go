package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/supaspectre/internal/coordinator"
	"github.com/ppiankov/supaspectre/internal/detection"
	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/storage"
)

// clientFactory overrides how REST clients are built; tests point it at
// an httptest server
var clientFactory coordinator.ClientFactory

// runtime bundles the stores and the coordinator a command works with
type runtime struct {
	store *detection.Store
	coord *coordinator.Coordinator
}

// openRuntime wires storage, the leak scanner and the coordinator from the
// loaded config. persist selects the on-disk store under storage_dir;
// otherwise everything lives in memory for the length of the command.
func openRuntime(ctx context.Context, persist bool) (*runtime, error) {
	var kv storage.Store
	if persist {
		path, err := cfg.GetStoragePath()
		if err != nil {
			return nil, err
		}
		local := storage.NewLocal(path)
		if err := local.EnsureDirectoryExists(); err != nil {
			return nil, err
		}
		logger.V(1).Info("using storage", "path", path)
		kv = local
	} else {
		kv = storage.NewMemory()
	}

	opts, err := cfg.ScannerOptions()
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	scanner, err := leakscan.New(opts)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("leak rules: %v", err)}
	}

	store := detection.New(kv, detection.WithLogger(logger))
	coordOpts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithScanner(scanner),
		coordinator.WithProbeConcurrency(cfg.ProbeConcurrency),
	}
	if clientFactory != nil {
		coordOpts = append(coordOpts, coordinator.WithClientFactory(clientFactory))
	}
	coord := coordinator.New(ctx, store, kv, coordOpts...)

	// consent_accepted in the config stands in for the extension's terms dialog
	if cfg.ConsentAccepted && !coord.Consented() {
		if err := coord.SetConsent(ctx, consentAccepted()); err != nil {
			return nil, err
		}
	}
	return &runtime{store: store, coord: coord}, nil
}

// requireConsent maps the coordinator's consent gate to a CLI error
func (rt *runtime) requireConsent() error {
	if rt.coord.Consented() {
		return nil
	}
	return &ValidationError{Message: coordinator.ConsentReason + " Run 'supaspectre consent --accept'."}
}

// cliError converts coordinator errors into typed CLI errors
func cliError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, coordinator.ErrConsentRequired):
		return &ValidationError{Message: coordinator.ConsentReason}
	case errors.Is(err, coordinator.ErrNothingToReport):
		return &ValidationError{Message: err.Error()}
	default:
		return err
	}
}
