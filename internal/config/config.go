package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	FetchModeHTTP     = "http"
	FetchModeChromium = "chromium"

	GranularityDay      = "day"
	GranularityShowtime = "showtime"
)

const (
	defaultSourceURL    = "https://www.afisha.ru/prm/schedule_cinema/"
	defaultOutputPath   = "calendar.ics"
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLang   = "ru-RU,ru;q=0.9,en;q=0.8"
	defaultTimezone     = "Asia/Yekaterinburg"
	defaultExclude      = "Россия"
	defaultPattern      = `(?i)(росси|usa|uk|france|germany)`
	defaultProdID       = "-//Afisha Calendar//afishacal//RU"
	defaultLocation     = "Кинотеатры Перми"
	defaultUIDDomain    = "afishacal"
	defaultListen       = "127.0.0.1:8080"
	defaultTimeoutSecs  = 30
	defaultAllDayDays   = 1
	defaultTimedMinutes = 120
	defaultPreviewDays  = 7
	defaultLogLevel     = "info"
)

// NationalityConfig controls the nationality filter and how the country
// text is located on detail pages.
type NationalityConfig struct {
	// Accept, if set, keeps only entries whose nationality equals it
	// (case-insensitive).
	Accept string `yaml:"accept" json:"accept"`
	// Exclude, if set, drops entries whose nationality contains it.
	Exclude string `yaml:"exclude" json:"exclude"`
	// Pattern is the regexp used to find the country text on a detail page.
	Pattern string `yaml:"pattern" json:"pattern"`
}

// CalendarConfig holds the calendar framing and per-event constant fields.
type CalendarConfig struct {
	ProdID        string `yaml:"prod_id" json:"prod_id"`
	Name          string `yaml:"name" json:"name"`
	Location      string `yaml:"location" json:"location"`
	UIDDomain     string `yaml:"uid_domain" json:"uid_domain"`
	SummaryPrefix string `yaml:"summary_prefix" json:"summary_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	// SourceURL is the first listing page; page N lives at SourceURL + "pageN/".
	SourceURL  string `yaml:"source_url" json:"source_url"`
	OutputPath string `yaml:"output_path" json:"output_path"`

	// FetchMode selects the page loader:
	//   - "http" (default): plain HTTP via colly
	//   - "chromium": headless Chromium via chromedp, for JS-rendered pages
	FetchMode      string `yaml:"fetch_mode" json:"fetch_mode"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" json:"accept_language"`
	TimeoutSeconds int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// MaxPages / MaxMovies limit the scrape; zero means unlimited.
	MaxPages    int  `yaml:"max_pages" json:"max_pages"`
	MaxMovies   int  `yaml:"max_movies" json:"max_movies"`
	SkipDetails bool `yaml:"skip_details" json:"skip_details"`

	// Timezone is the IANA zone dates and showtimes are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	Nationality NationalityConfig `yaml:"nationality" json:"nationality"`

	// Granularity is the dedup key: "day" collapses all showtimes of a film
	// on one date into a single event, "showtime" keeps one per time.
	Granularity  string `yaml:"granularity" json:"granularity"`
	AllDayDays   int    `yaml:"all_day_days" json:"all_day_days"`
	TimedMinutes int    `yaml:"timed_minutes" json:"timed_minutes"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// Schedule is a cron expression (e.g. "0 6 * * *"). Empty means the
	// process runs once and exits, leaving scheduling to the caller.
	Schedule string `yaml:"schedule" json:"schedule"`

	// MetricsFile, if set, receives a Prometheus textfile with the run summary.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`

	// Listen is the HTTP address used by `afishacal serve`.
	Listen string `yaml:"listen" json:"listen"`

	// PreviewDays is the default window for `afishacal preview`.
	PreviewDays int `yaml:"preview_days" json:"preview_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceURL:      defaultSourceURL,
		OutputPath:     defaultOutputPath,
		FetchMode:      FetchModeHTTP,
		UserAgent:      defaultUserAgent,
		AcceptLanguage: defaultAcceptLang,
		TimeoutSeconds: defaultTimeoutSecs,
		Timezone:       defaultTimezone,
		Nationality: NationalityConfig{
			Exclude: defaultExclude,
			Pattern: defaultPattern,
		},
		Granularity:  GranularityDay,
		AllDayDays:   defaultAllDayDays,
		TimedMinutes: defaultTimedMinutes,
		Calendar: CalendarConfig{
			ProdID:    defaultProdID,
			Location:  defaultLocation,
			UIDDomain: defaultUIDDomain,
		},
		Listen:      defaultListen,
		PreviewDays: defaultPreviewDays,
		LogLevel:    defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.SourceURL == "" {
		c.SourceURL = defaultSourceURL
	}
	if c.OutputPath == "" {
		c.OutputPath = defaultOutputPath
	}
	if c.FetchMode == "" {
		c.FetchMode = FetchModeHTTP
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = defaultAcceptLang
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSecs
	}
	if c.MaxPages < 0 {
		c.MaxPages = 0
	}
	if c.MaxMovies < 0 {
		c.MaxMovies = 0
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Nationality.Pattern == "" {
		c.Nationality.Pattern = defaultPattern
	}
	if c.Granularity == "" {
		c.Granularity = GranularityDay
	}
	if c.AllDayDays <= 0 {
		c.AllDayDays = defaultAllDayDays
	}
	if c.TimedMinutes <= 0 {
		c.TimedMinutes = defaultTimedMinutes
	}
	if c.Calendar.ProdID == "" {
		c.Calendar.ProdID = defaultProdID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = defaultUIDDomain
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.PreviewDays <= 0 {
		c.PreviewDays = defaultPreviewDays
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports the first invalid setting. It expects a normalized config.
func (c *Config) Validate() error {
	switch c.FetchMode {
	case FetchModeHTTP, FetchModeChromium:
	default:
		return fmt.Errorf("config: unknown fetch_mode %q", c.FetchMode)
	}
	switch c.Granularity {
	case GranularityDay, GranularityShowtime:
	default:
		return fmt.Errorf("config: unknown granularity %q", c.Granularity)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := regexp.Compile(c.Nationality.Pattern); err != nil {
		return fmt.Errorf("config: nationality.pattern: %w", err)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("config: schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// Location resolves Timezone. Validate has already checked it, so the
// error path only falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory, then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".afishacal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
