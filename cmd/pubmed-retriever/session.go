// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-retriever/internal/browsersession"
	"github.com/pdiddy/pubmed-retriever/internal/cookies"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage browser sessions used for downloads",
	Long: `A browser session is a set of proxy cookies taken from a browser that is
already logged in to the EZProxy. Acquisitions try the browser session before
the credential login. Sessions expire two hours after capture.`,
}

var sessionImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import proxy cookies from a browser cookie store",
	Long: `Import reads the proxy cookies from a Netscape cookies.txt export or from
a Firefox (cookies.sqlite) or Chrome (Cookies) profile database. Chrome values
encrypted by the OS are skipped.`,
	RunE: runSessionImport,
}

var sessionCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Log in through a Chrome window and keep its cookies",
	RunE:  runSessionCapture,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List valid browser sessions",
	RunE:  runSessionList,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear ID",
	Short: "Remove a browser session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		browser, err := openBrowserSessions()
		if err != nil {
			return err
		}
		if err := browser.Invalidate(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	sessionImportCmd.Flags().String("cookies", "", "cookie store file (cookies.txt, cookies.sqlite or Chrome Cookies)")
	sessionImportCmd.Flags().String("domain", "", "cookie domain (default: derived from proxy.login_url)")
	sessionImportCmd.Flags().String("user-agent", "", "user agent of the browser the cookies came from")
	_ = sessionImportCmd.MarkFlagRequired("cookies")

	sessionCaptureCmd.Flags().Duration("timeout", 5*time.Minute, "how long to wait for the login")
	sessionCaptureCmd.Flags().String("chrome", "", "path to the Chrome binary")

	sessionCmd.AddCommand(sessionImportCmd, sessionCaptureCmd, sessionListCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func openBrowserSessions() (*browsersession.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return browsersession.Open(afero.NewOsFs(), cfg.BrowserSessions.File, cfg.BrowserSessions.MaxAge, logger.Named("browser-session")), nil
}

func runSessionImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("cookies")
	if path, err = expand(path); err != nil {
		return err
	}
	domain, _ := cmd.Flags().GetString("domain")
	if domain == "" {
		domain = proxyDomain(cfg.Proxy.LoginURL)
	}
	ua, _ := cmd.Flags().GetString("user-agent")
	if ua == "" {
		ua = cfg.Download.UserAgent
	}

	found, src, err := cookies.Import(path, domain)
	if err != nil {
		return err
	}
	if src.Skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d malformed line(s)\n", src.Skipped)
	}
	if len(found) == 0 {
		return fmt.Errorf("no cookies for %s in %s", domain, path)
	}

	browser, err := openBrowserSessions()
	if err != nil {
		return err
	}
	return storeSession(cmd, browser, cookies.Strings(found), ua, src.Format.String())
}

func runSessionCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	chrome, _ := cmd.Flags().GetString("chrome")

	fmt.Fprintf(cmd.OutOrStdout(), "Log in to the proxy in the Chrome window (waiting up to %s)\n", timeout)
	got, err := cookies.Capture(cmd.Context(), cfg.Proxy.LoginURL, cookies.CaptureOptions{
		Timeout:  timeout,
		ExecPath: chrome,
		Log:      logger.Named("capture"),
	})
	if err != nil {
		return err
	}

	browser, err := openBrowserSessions()
	if err != nil {
		return err
	}
	return storeSession(cmd, browser, cookies.Strings(got.Cookies), got.UserAgent, "Chrome")
}

func storeSession(cmd *cobra.Command, browser *browsersession.Store, cookieStrings []string, ua, from string) error {
	id := "browser-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	bs, err := browser.Store(id, cookieStrings, ua)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stored %s: %d of %d cookie(s) from %s\n", id, len(bs.Cookies), len(cookieStrings), from)
	if len(bs.Cookies) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: no proxy, session or auth cookie among them; downloads will not use this session")
	}
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	browser, err := openBrowserSessions()
	if err != nil {
		return err
	}
	sessions := browser.GetAllValid()
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No valid browser sessions")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAPTURED\tCOOKIES\tUSER AGENT")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s ago\t%d\t%s\n", s.SessionID, time.Since(s.LastAuthenticated).Round(time.Minute), len(s.Cookies), s.UserAgent)
	}
	return tw.Flush()
}

// proxyDomain turns a login URL such as https://login.ezproxy.lib.edu/login
// into the cookie domain ezproxy.lib.edu.
func proxyDomain(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil || u.Hostname() == "" {
		return loginURL
	}
	return strings.TrimPrefix(u.Hostname(), "login.")
}
