// Package supervisor launches and reaps the Chromium child process from
// spec §4.3: it owns the pipe pairs handed to the Transport, assembles the
// command line from Config, and guarantees the child is never orphaned.
package supervisor

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Config is the recognized option set from spec §3.
//
// CleanDataDir and Headless are *bool, not bool: both default to true per
// spec §3, and a plain bool field can't distinguish "the caller left this
// unset" from "the caller explicitly asked for false" — a zero-value
// Config{} would otherwise silently mean headless=false, clean=false.
// Leave them nil to take the default, or use Bool(false) to opt out.
type Config struct {
	ChromePath     string
	UserDataDir    string
	CleanDataDir   *bool
	Headless       *bool
	ExtraArgs      []string
	Env            map[string]string
	StartupTimeout time.Duration

	// TermGrace and KillGrace bound the SIGTERM→SIGKILL escalation from
	// spec §4.3's supervision paragraph. Zero means use the package
	// defaults.
	TermGrace time.Duration
	KillGrace time.Duration
}

// Bool returns a pointer to b, for populating Config's tri-state fields
// (Config{Headless: supervisor.Bool(false)}).
func Bool(b bool) *bool { return &b }

const (
	defaultChromePath     = "chromium"
	defaultStartupTimeout = 30 * time.Second
	defaultTermGrace      = 5 * time.Second
	defaultKillGrace      = 2 * time.Second

	// ChromePathEnvVar is consumed per spec §6 to default ChromePath when
	// the caller leaves it unset.
	ChromePathEnvVar = "PYPECDP_CHROME_PATH"
)

// withDefaults returns a copy of c with every unset field filled in per
// spec §3 (env var, then hardcoded default).
func (c Config) withDefaults() Config {
	if c.ChromePath == "" {
		if p := os.Getenv(ChromePathEnvVar); p != "" {
			c.ChromePath = p
		} else {
			c.ChromePath = defaultChromePath
		}
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = defaultStartupTimeout
	}
	if c.TermGrace <= 0 {
		c.TermGrace = defaultTermGrace
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	if c.Headless == nil {
		c.Headless = Bool(true)
	}
	if c.CleanDataDir == nil {
		c.CleanDataDir = Bool(true)
	}
	return c
}

// defaultFlags is the curated automation-hygiene set from spec §6,
// grounded on the teacher's pkg/cdp.defaultBrowserFlags (itself surveyed
// from chromedp, puppeteer and chrome-launcher).
var defaultFlags = map[string]interface{}{
	"disable-background-networking":                       true,
	"disable-background-timer-throttling":                 true,
	"disable-backgrounding-occluded-windows":               true,
	"disable-breakpad":                                     true,
	"disable-client-side-phishing-detection":               true,
	"disable-component-extensions-with-background-pages":   true,
	"disable-default-apps":                                 true,
	"disable-dev-shm-usage":                                true,
	"disable-extensions":                                   true,
	"disable-hang-monitor":                                 true,
	"disable-ipc-flooding-protection":                       true,
	"disable-popup-blocking":                                true,
	"disable-prompt-on-repost":                              true,
	"disable-renderer-backgrounding":                        true,
	"disable-sync":                                          true,
	"enable-automation":                                     true,
	"metrics-recording-only":                                true,
	"mute-audio":                                             true,
	"no-default-browser-check":                              true,
	"no-first-run":                                          true,
	"password-store":                                        "basic",
	"use-mock-keychain":                                      true,
}

// suppressPrefix marks an extra_args entry as a request to remove a default
// flag rather than append one, per spec §3: "callers may suppress any
// default by listing it in a suppression set within extra_args."
const suppressPrefix = "!"

// buildArgs assembles the child's argv (without the executable itself),
// per spec §6: the default flags together with remote-debugging-pipe and
// user-data-dir, sorted by flag name, then extra_args in order, ending in
// about:blank.
func buildArgs(c Config, userDataDir string) []string {
	flags := make(map[string]interface{}, len(defaultFlags)+2)
	for k, v := range defaultFlags {
		flags[k] = v
	}
	if c.Headless != nil && *c.Headless {
		flags["headless"] = true
	}
	if os.Getuid() == 0 {
		flags["no-sandbox"] = true
	}

	var passthrough []string
	for _, a := range c.ExtraArgs {
		if strings.HasPrefix(a, suppressPrefix) {
			delete(flags, strings.TrimPrefix(a, suppressPrefix))
			continue
		}
		passthrough = append(passthrough, a)
	}

	flags["remote-debugging-pipe"] = true
	flags["user-data-dir"] = userDataDir

	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)+len(passthrough)+1)
	for _, k := range keys {
		switch v := flags[k].(type) {
		case bool:
			if v {
				args = append(args, "--"+k)
			}
		default:
			args = append(args, fmt.Sprintf("--%s=%v", k, v))
		}
	}
	args = append(args, passthrough...)
	args = append(args, "about:blank")
	return args
}

// buildEnv overlays c.Env on top of the parent process environment, per
// spec §4.3.
func buildEnv(c Config) []string {
	if len(c.Env) == 0 {
		return os.Environ()
	}
	env := append([]string(nil), os.Environ()...)
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// dataDir manages the user-data-dir lifecycle from spec §4.3 through an
// afero.Fs, so the policy (wipe at start/close, always clean an allocated
// temp dir) is testable without touching the real filesystem.
type dataDir struct {
	fs        afero.Fs
	path      string
	ephemeral bool // true when no user_data_dir was configured
	clean     bool // Config.CleanDataDir
}

func newDataDir(fs afero.Fs, c Config) (*dataDir, error) {
	d := &dataDir{fs: fs, clean: c.CleanDataDir != nil && *c.CleanDataDir}
	if c.UserDataDir != "" {
		d.path = c.UserDataDir
	} else {
		d.path = "/tmp/cdppipe-" + uuid.NewString()
		d.ephemeral = true
	}
	if d.clean {
		if err := d.fs.RemoveAll(d.path); err != nil {
			return nil, fmt.Errorf("supervisor: wiping user data dir: %w", err)
		}
	}
	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: creating user data dir: %w", err)
	}
	return d, nil
}

// cleanup removes the directory per policy: always for an ephemeral
// (auto-allocated) dir, otherwise only when CleanDataDir is set.
func (d *dataDir) cleanup() error {
	if !d.ephemeral && !d.clean {
		return nil
	}
	return d.fs.RemoveAll(d.path)
}
