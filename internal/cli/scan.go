package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/coordinator"
	"github.com/ppiankov/supaspectre/internal/models"
)

var (
	scanSourceURL string
	scanRecord    bool
	scanFormat    string
)

var scanCmd = &cobra.Command{
	Use:   "scan <file|dir>...",
	Short: "Scan local assets for Supabase keys and leaked credentials",
	Long: `Scan runs the leak scanner and the Supabase key detector over built
assets on disk, the same way the bridge scans bodies captured in the
browser. Directories are walked recursively; excluded file types are
skipped.

With --record, detections are written to the detection store so that a
later 'supaspectre report' includes them. Recording requires accepted terms.

Example:
  supaspectre scan ./dist
  supaspectre scan ./dist/assets/index.js --source-url https://app.example.com/
  supaspectre scan ./dist --record --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanSourceURL, "source-url", "",
		"page URL the assets are served from; asset URLs are resolved against it")
	scanCmd.Flags().BoolVar(&scanRecord, "record", false,
		"record detections in the detection store")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text",
		"output format: text or json")
}

// scannedFile is one asset and what it produced
type scannedFile struct {
	Path   string                 `json:"path"`
	URL    string                 `json:"url"`
	Result coordinator.ScanResult `json:"result"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if scanFormat != "text" && scanFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", scanFormat)}
	}

	rt, err := openRuntime(ctx, scanRecord)
	if err != nil {
		return err
	}
	if scanRecord {
		if err := rt.requireConsent(); err != nil {
			return err
		}
	} else if !rt.coord.Consented() {
		// detections stay in memory and vanish with the process
		if err := rt.coord.SetConsent(ctx, consentAccepted()); err != nil {
			return err
		}
	}

	paths, err := collectAssetPaths(args)
	if err != nil {
		return err
	}

	results := make([]scannedFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		assetURL := assetURLFor(path, args, scanSourceURL)
		res, err := rt.coord.ScanAssetBody(ctx, models.AssetBody{
			AssetURL: assetURL,
			PageURL:  scanSourceURL,
			Body:     string(data),
		})
		if err != nil {
			return cliError(err)
		}
		logger.V(1).Info("asset scanned", "path", path, "keys", len(res.Assets), "leaks", len(res.Leaks), "skipped", res.Skipped)
		results = append(results, scannedFile{Path: path, URL: assetURL, Result: res})
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printScanText(out, results)
	return nil
}

// collectAssetPaths expands directories into their regular files
func collectAssetPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("cannot scan %s: %v", arg, err)}
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if (path != arg && strings.HasPrefix(d.Name(), ".")) || d.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return paths, nil
}

// assetURLFor names an asset the way the browser would: relative to the
// source URL when one is given, otherwise as a file URL
func assetURLFor(path string, roots []string, sourceURL string) string {
	if sourceURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		return "file://" + filepath.ToSlash(abs)
	}
	rel := filepath.Base(path)
	for _, root := range roots {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") && r != "." {
			rel = r
			break
		}
	}
	return strings.TrimSuffix(sourceURL, "/") + "/" + filepath.ToSlash(rel)
}

func printScanText(w io.Writer, results []scannedFile) {
	var keys, leaks, skipped int
	for _, r := range results {
		if r.Result.Skipped != "" {
			skipped++
			continue
		}
		if len(r.Result.Assets) == 0 && len(r.Result.Leaks) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", r.Path)
		for _, a := range r.Result.Assets {
			keys++
			fmt.Fprintf(w, "  [SUPABASE] %s key %s (project %s)\n", a.KeyType, a.APIKeySnippet, a.ProjectID)
		}
		for _, l := range r.Result.Leaks {
			leaks++
			fmt.Fprintf(w, "  [LEAK] %s %s\n", l.Pattern, l.MatchSnippet)
		}
	}
	fmt.Fprintf(w, "\nScanned %d file(s): %d Supabase key(s), %d leak(s), %d skipped\n",
		len(results), keys, leaks, skipped)
}
