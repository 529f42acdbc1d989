// Package fingerprint builds randomized browsing identities for browser sessions.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// DefaultUserAgents is the pool a profile's user agent is drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

const (
	minGeoOffset = 0.05
	maxGeoOffset = 0.1

	minConcurrency = 4
	maxConcurrency = 16
)

var deviceMemoryChoices = []int{4, 8, 16}

// Profile is one session's browsing identity. It is never persisted.
type Profile struct {
	UserAgent           string
	Platform            string
	Locale              string
	Languages           []string
	Timezone            string
	Latitude            float64
	Longitude           float64
	HardwareConcurrency int
	DeviceMemory        int
}

type Options struct {
	UserAgents []string
	Latitude   float64
	Longitude  float64
	Locale     string
	Timezone   string
}

// Provisioner generates fresh profiles. Safe for concurrent use.
type Provisioner struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand
}

func NewProvisioner(opts Options) *Provisioner {
	return newProvisioner(opts, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

func newProvisioner(opts Options, rng *rand.Rand) *Provisioner {
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents
	}
	if opts.Locale == "" {
		opts.Locale = "en-GB"
	}
	if opts.Timezone == "" {
		opts.Timezone = "Europe/London"
	}
	return &Provisioner{opts: opts, rng: rng}
}

// New returns a freshly randomized profile.
func (p *Provisioner) New() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	ua := p.opts.UserAgents[p.rng.IntN(len(p.opts.UserAgents))]
	return Profile{
		UserAgent:           ua,
		Platform:            platformFor(ua),
		Locale:              p.opts.Locale,
		Languages:           languagesFor(p.opts.Locale),
		Timezone:            p.opts.Timezone,
		Latitude:            p.opts.Latitude + p.geoOffset(),
		Longitude:           p.opts.Longitude + p.geoOffset(),
		HardwareConcurrency: minConcurrency + p.rng.IntN(maxConcurrency-minConcurrency+1),
		DeviceMemory:        deviceMemoryChoices[p.rng.IntN(len(deviceMemoryChoices))],
	}
}

// geoOffset is a signed offset whose magnitude lies in [minGeoOffset, maxGeoOffset].
func (p *Provisioner) geoOffset() float64 {
	offset := minGeoOffset + p.rng.Float64()*(maxGeoOffset-minGeoOffset)
	if p.rng.IntN(2) == 0 {
		return -offset
	}
	return offset
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	default:
		return "Linux x86_64"
	}
}

func languagesFor(locale string) []string {
	lang, _, found := strings.Cut(locale, "-")
	if !found || lang == locale {
		return []string{locale}
	}
	return []string{locale, lang}
}

// LaunchArgs are the automation-evasion flags passed to Chromium.
func (p Profile) LaunchArgs() []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
		"--disable-setuid-sandbox",
		"--no-sandbox",
		"--ignore-certificate-errors",
		"--enable-features=NetworkService,NetworkServiceInProcess",
		"--lang=" + p.Locale,
		"--user-agent=" + p.UserAgent,
	}
}

// InitScript returns JavaScript that runs before any page script and overrides
// the navigator properties commonly inspected by bot detection.
func (p Profile) InitScript() string {
	languages, _ := json.Marshal(p.Languages)
	platform, _ := json.Marshal(p.Platform)
	return fmt.Sprintf(`(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(Navigator.prototype, 'webdriver', undefined);
  define(Navigator.prototype, 'languages', %s);
  define(Navigator.prototype, 'platform', %s);
  define(Navigator.prototype, 'hardwareConcurrency', %d);
  define(Navigator.prototype, 'deviceMemory', %d);
  const plugins = [
    { name: 'PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
    { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
  ];
  define(Navigator.prototype, 'plugins', plugins);
  if (!window.chrome) { window.chrome = { runtime: {} }; }
})();`, languages, platform, p.HardwareConcurrency, p.DeviceMemory)
}
