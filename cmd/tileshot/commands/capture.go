package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/bryanchriswhite/TileShot/internal/stitch"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture URL",
	Short: "Capture a web page",
	Long: `Open URL in the browser and capture an element, the viewport, the whole
document or an explicit region of it.

Regions taller or wider than the viewport are captured tile by tile and
stitched. Without --selector, --viewport, --full or --region the whole
document is captured.`,
	Example: `  # Capture the full page into the configured output directory
  tileshot capture https://example.com

  # Capture one element as JPEG
  tileshot capture https://example.com --selector "#main" --format jpeg --quality 80

  # Capture a region at 2x into the clipboard
  tileshot capture https://example.com --region 0,400,1280,3000 --dpr 2 --clipboard

  # Print the result as JSON
  tileshot capture https://example.com --viewport --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	captureSelector  string
	captureViewport  bool
	captureFull      bool
	captureRegion    string
	captureMode      string
	captureFormat    string
	captureQuality   int
	captureOutDir    string
	captureFilename  string
	captureClipboard bool
	captureDebug     bool
	captureDPR       float64
	captureWidth     int
	captureHeight    int
	captureDelay     time.Duration
	captureJSON      bool
)

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.StringVarP(&captureSelector, "selector", "s", "", "capture the element matching this CSS selector")
	f.BoolVar(&captureViewport, "viewport", false, "capture the visible viewport")
	f.BoolVar(&captureFull, "full", false, "capture the whole document (default)")
	f.StringVar(&captureRegion, "region", "", "capture a page region given as x,y,width,height in CSS pixels")
	f.StringVar(&captureMode, "mode", "", "capture path (auto, single or tiled)")
	f.StringVarP(&captureFormat, "format", "f", "", "output format (png, jpeg, tiff, bmp or pdf)")
	f.IntVarP(&captureQuality, "quality", "q", 0, "lossy quality 1-100")
	f.StringVarP(&captureOutDir, "out", "o", "", "output directory")
	f.StringVar(&captureFilename, "filename", "", "output file name")
	f.BoolVar(&captureClipboard, "clipboard", false, "copy the capture to the clipboard instead of saving it")
	f.BoolVar(&captureDebug, "debug", false, "slow down and outline the captured region")
	f.Float64Var(&captureDPR, "dpr", 0, "device pixel ratio to emulate")
	f.IntVar(&captureWidth, "width", 0, "viewport width in CSS pixels")
	f.IntVar(&captureHeight, "height", 0, "viewport height in CSS pixels")
	f.DurationVar(&captureDelay, "delay", 0, "wait before capturing")
	f.BoolVar(&captureJSON, "json", false, "print the result as JSON")

	captureCmd.MarkFlagsMutuallyExclusive("selector", "viewport", "full", "region")
}

func runCapture(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if captureOutDir != "" {
		cfg.Preferences.OutputDir = captureOutDir
	}
	if captureWidth > 0 {
		cfg.Browser.Viewport.Width = captureWidth
	}
	if captureHeight > 0 {
		cfg.Browser.Viewport.Height = captureHeight
	}
	if captureDPR > 0 {
		cfg.Browser.DevicePixelRatio = captureDPR
	}

	d, err := captureDescriptor(args[0])
	if err != nil {
		return err
	}

	// Ctrl+C only cancels a job that has not started yet
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.runner.Run(ctx, d)
	if err := printResult(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("capture failed")
	}
	return nil
}

// captureDescriptor builds the job from the command line
func captureDescriptor(url string) (job.Descriptor, error) {
	d := job.Descriptor{
		URL:      url,
		Mode:     stitch.Mode(strings.ToLower(captureMode)),
		Debug:    captureDebug,
		Format:   captureFormat,
		Quality:  captureQuality,
		Filename: captureFilename,
		DelayMs:  int(captureDelay / time.Millisecond),
		Target:   job.TargetFull,
	}
	if captureClipboard {
		d.Sink = output.SinkClipboard
	}

	switch {
	case captureSelector != "":
		d.Target = job.TargetElement
		d.Selector = captureSelector
	case captureViewport:
		d.Target = job.TargetViewport
	case captureRegion != "":
		r, err := parseRegion(captureRegion)
		if err != nil {
			return d, err
		}
		d.Target = job.TargetRegion
		d.Region = r
	}
	return d, nil
}

// parseRegion parses "x,y,width,height"
func parseRegion(s string) (geometry.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Rect{}, fmt.Errorf("invalid region %q (use x,y,width,height)", s)
	}
	var v [4]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	return geometry.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func printResult(res job.Result) error {
	if captureJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	}

	if !res.Success {
		fmt.Printf("❌ Capture failed (%s): %s\n", res.Kind, res.Error)
		return nil
	}

	where := res.Filename
	if res.Delivery != nil {
		switch res.Delivery.Sink {
		case output.SinkFile:
			where = res.Delivery.Location
		case output.SinkClipboard:
			where = "clipboard"
		}
	}
	fmt.Printf("✅ Captured %dx%d (%s, %d tiles) in %s → %s\n",
		res.Width, res.Height, res.Mode, res.Tiles, res.Duration.Round(time.Millisecond), where)
	if res.Skipped > 0 {
		fmt.Printf("⚠️  %d tiles skipped\n", res.Skipped)
	}
	for _, w := range res.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	return nil
}
