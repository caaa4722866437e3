// internal/browser/default_allocator_options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// chromeFlag is one parsed Chrome command line switch.
type chromeFlag struct {
	name  string
	value any
}

// parseArgFlags translates user supplied arguments from command line form
// ("--name=value" or "--name") into switches for the allocator. Blank
// entries are dropped.
func parseArgFlags(args []string) []chromeFlag {
	flags := make([]chromeFlag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, found := strings.Cut(arg, "="); found {
			flags = append(flags, chromeFlag{name: name, value: value})
		} else {
			flags = append(flags, chromeFlag{name: arg, value: true})
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the Chrome launch options for a driver. It
// starts from chromedp's defaults and layers on the configured window
// geometry, headless mode, and any extra user supplied arguments. User args
// come last so they override anything set before them.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		// chromedp's defaults enable headless; setting the flag from config
		// overrides it in either direction.
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.Flag("disable-extensions", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, f := range parseArgFlags(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}
