// domainposture is a command-line tool that assesses the security posture of domains
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/commjoen/domainposture/internal/config"
	"github.com/commjoen/domainposture/internal/logging"
	"github.com/commjoen/domainposture/internal/output"
	"github.com/commjoen/domainposture/internal/scanner"
	"github.com/commjoen/domainposture/internal/target"
	"github.com/commjoen/domainposture/pkg/models"
)

const maxDomains = 100

var (
	// CLI flags
	cfgFile    string
	domains    string
	format     string
	outputFile string
	verbose    bool
	progress   bool

	// v holds flag, environment and file settings
	v = config.New()

	// Version information (set during build)
	version = "dev"
)

func main() {
	initVersion()
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "domainposture",
	Short:   "Domain security posture scanner",
	Version: version,
	Long: `domainposture assesses the security posture of domains. For each domain it
inspects the TLS certificate, resolves DNS records and evaluates the HTTP
security headers of the HTTPS origin, all concurrently.

Settings are read from flags, DOMAINPOSTURE_* environment variables and
$HOME/.domainposture.yaml (or --config), in that order of precedence.`,
	Example: `  # Scan a single domain
  domainposture --domains example.com

  # Multiple domains with JSON output
  domainposture --domains example.com,example.org --format json

  # Save results to file
  domainposture --domains example.com --format csv --out results.csv

  # Extended DNS records and WHOIS registration data
  domainposture --domains example.com --records A,AAAA,MX,TXT,NS --whois

  # Serve the scan API
  domainposture serve --addr :5001`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.ReadFile(v, cfgFile)
	},
	RunE: run,
}

func init() {
	rootCmd.SetVersionTemplate("domainposture version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: $HOME/.domainposture.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	pf.Duration("timeout", 5*time.Second, "Per-inspector network timeout")
	pf.Duration("deadline", 15*time.Second, "Overall deadline for scanning one domain")
	pf.StringSlice("records", []string{"A", "MX"}, "DNS record types to resolve (A,AAAA,MX,TXT,NS,CNAME,SOA)")
	pf.Int("max-redirects", 5, "Redirects followed by the header analyzer (0 follows none)")
	pf.StringSlice("dns-servers", nil, "DNS servers to query (default: system resolvers)")
	pf.Bool("whois", false, "Enable WHOIS lookups for registration data")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.Flags().StringVarP(&domains, "domains", "d", "", "Comma-separated list of target domains (required)")
	rootCmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, or csv")
	rootCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Write output to file (default: stdout)")
	rootCmd.Flags().IntP("concurrent", "c", 4, "Maximum domains scanned concurrently")
	rootCmd.Flags().BoolVarP(&progress, "progress", "p", false, "Show progress bar during scan")

	mustBind(map[string]*pflag.Flag{
		"timeout":       pf.Lookup("timeout"),
		"deadline":      pf.Lookup("deadline"),
		"records":       pf.Lookup("records"),
		"max_redirects": pf.Lookup("max-redirects"),
		"dns_servers":   pf.Lookup("dns-servers"),
		"whois":         pf.Lookup("whois"),
		"log_level":     pf.Lookup("log-level"),
		"concurrent":    rootCmd.Flags().Lookup("concurrent"),
	})

	// MarkFlagRequired only returns an error if the flag doesn't exist.
	if err := rootCmd.MarkFlagRequired("domains"); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to mark 'domains' flag as required: %v\n", err)
		os.Exit(1)
	}
}

// mustBind binds config keys to flags; a failure is a programming error
func mustBind(bindings map[string]*pflag.Flag) {
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flag); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal: failed to bind flag for %q: %v\n", key, err)
			os.Exit(1)
		}
	}
}

// newLogger builds the logger for cfg; --verbose forces a debug console logger
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if verbose {
		return logging.New("debug", true)
	}
	return logging.New(cfg.LogLevel, false)
}

func scannerOptions(cfg *config.Config, logger *zap.Logger) scanner.Options {
	return scanner.Options{
		Timeout:      cfg.Timeout,
		Deadline:     cfg.Deadline,
		RecordTypes:  cfg.Records,
		DNSServers:   cfg.DNSServers,
		MaxRedirects: cfg.MaxRedirects,
		WHOIS:        cfg.WHOIS,
		Logger:       logger,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func run(cmd *cobra.Command, args []string) error {
	// Parse domains
	domainList := parseDomains(domains)
	if len(domainList) == 0 {
		return fmt.Errorf("no valid domains provided")
	}

	// Security: Limit domain list size to prevent abuse
	if len(domainList) > maxDomains {
		return fmt.Errorf("too many domains specified (max %d, got %d)", maxDomains, len(domainList))
	}

	// Create output formatter
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("parsed domains", zap.Strings("domains", domainList))

	ctx, cancel := signalContext(logger)
	defer cancel()

	opts := scannerOptions(cfg, logger)
	if progress {
		opts.Progress = func(done, total int) {
			printProgress("scanning", done, total)
		}
		// Show initial progress (0%) before the first scan completes
		printProgress("scanning", 0, len(domainList))
	}
	s := scanner.New(opts)

	result := &models.BatchResult{
		Timestamp: time.Now().UTC(),
		Entries:   s.ScanAll(ctx, domainList, cfg.Concurrent),
	}
	result.Summarize()

	// Clear progress bar line
	if progress {
		fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", 80))
	}

	if err := outputResults(formatter, result); err != nil {
		return err
	}

	if result.Summary.Rejected > 0 {
		return fmt.Errorf("%w: %d of %d domains rejected", target.ErrInvalidDomain, result.Summary.Rejected, result.Summary.TotalDomains)
	}
	return nil
}

func parseDomains(input string) []string {
	result := []string{}
	for _, domain := range strings.Split(input, ",") {
		domain = strings.TrimSpace(domain)
		if domain != "" {
			// Normalize wildcards, schemes and case; validation happens per scan
			result = append(result, target.NormalizeDomain(domain))
		}
	}
	return result
}

// printProgress displays a progress bar
func printProgress(label string, current, total int) {
	if total <= 0 {
		return
	}
	percentage := float64(current) / float64(total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * float64(current) / float64(total))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(os.Stderr, "\r[%s] %3.0f%% (%d/%d) %s", bar, percentage, current, total, label)
}

// validateOutputPath performs security validation on the output file path
func validateOutputPath(path string) error {
	if path == "" {
		return nil
	}

	// Clean the path to resolve any . or .. components
	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		sensitivePatterns := []string{"/etc/", "/var/", "/usr/", "/bin/", "/sbin/", "/root/"}
		for _, pattern := range sensitivePatterns {
			if strings.HasPrefix(cleanPath, pattern) {
				return fmt.Errorf("refusing to write to sensitive system location: %s", cleanPath)
			}
		}
	}

	return nil
}

func outputResults(formatter output.Formatter, result *models.BatchResult) error {
	if outputFile == "" {
		return formatter.Write(os.Stdout, result)
	}

	// Validate the output path for security
	if err := validateOutputPath(outputFile); err != nil {
		return err
	}

	// #nosec G304 -- User-provided output file path is intentional for CLI tool
	writer, err := os.Create(filepath.Clean(outputFile))
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer writer.Close()

	return formatter.Write(writer, result)
}
