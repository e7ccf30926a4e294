// Package config assembles FusionSound's runtime configuration (§6) from
// the layered sources the original project reads, later sources
// overriding earlier ones: system config file, user config file,
// per-program system config file, per-program user config file,
// environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/sample"
)

// Config holds the recognised keys of §6, after all layers are merged.
type Config struct {
	Driver       string
	Banner       bool
	Wait         bool
	DeinitCheck  bool
	Session      int
	Channels     int
	ChannelMode  sample.ChannelMode
	SampleFormat sample.Format
	SampleRate   int
	BufferTimeMS int
	Dither       bool
}

// Default returns the engine's built-in defaults, used as the innermost
// configuration layer.
func Default() Config {
	return Config{
		Driver:       "portaudio",
		Banner:       true,
		Wait:         false,
		DeinitCheck:  true,
		Session:      0,
		Channels:     2,
		ChannelMode:  sample.Stereo,
		SampleFormat: sample.FormatS16,
		SampleRate:   44100,
		BufferTimeMS: 50,
		Dither:       true,
	}
}

// programName is substituted into the per-program config file names
// (e.g. "fusionsound.yaml" next to the shared "config.yaml").
const programName = "fusionsound"

// SystemConfigPath returns the shared system config file path.
func SystemConfigPath() string {
	return filepath.Join("/etc", "fusionsound", "config.yaml")
}

// UserConfigPath returns the shared user config file path.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fusionsound", "config.yaml")
}

// ProgramSystemConfigPath returns the per-program system config file path.
func ProgramSystemConfigPath() string {
	return filepath.Join("/etc", "fusionsound", programName+".yaml")
}

// ProgramUserConfigPath returns the per-program user config file path.
func ProgramUserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fusionsound", programName+".yaml")
}

// fileOverlay is the subset of keys a YAML config file may set; all
// fields are pointers so an absent key leaves the prior layer untouched.
type fileOverlay struct {
	Driver       *string `yaml:"driver"`
	Banner       *bool   `yaml:"banner"`
	Wait         *bool   `yaml:"wait"`
	DeinitCheck  *bool   `yaml:"deinit-check"`
	Session      *int    `yaml:"session"`
	Channels     *int    `yaml:"channels"`
	ChannelMode  *string `yaml:"channelmode"`
	SampleFormat *string `yaml:"sampleformat"`
	SampleRate   *int    `yaml:"samplerate"`
	BufferTimeMS *int    `yaml:"buffertime"`
	Dither       *bool   `yaml:"dither"`
}

func loadFileOverlay(path string) (fileOverlay, error) {
	var overlay fileOverlay
	if path == "" {
		return overlay, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, nil
		}
		return overlay, fmt.Errorf("config: read %s: %w", path, errs.IoFailure)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("config: parse %s: %w", path, errs.InvalidArgument)
	}
	return overlay, nil
}

func (c *Config) applyOverlay(o fileOverlay) error {
	if o.Driver != nil {
		c.Driver = *o.Driver
	}
	if o.Banner != nil {
		c.Banner = *o.Banner
	}
	if o.Wait != nil {
		c.Wait = *o.Wait
	}
	if o.DeinitCheck != nil {
		c.DeinitCheck = *o.DeinitCheck
	}
	if o.Session != nil {
		c.Session = *o.Session
	}
	if o.Channels != nil {
		c.Channels = *o.Channels
	}
	if o.ChannelMode != nil {
		m, err := ParseChannelMode(*o.ChannelMode)
		if err != nil {
			return err
		}
		c.ChannelMode = m
	}
	if o.SampleFormat != nil {
		f, err := ParseSampleFormat(*o.SampleFormat)
		if err != nil {
			return err
		}
		c.SampleFormat = f
	}
	if o.SampleRate != nil {
		c.SampleRate = *o.SampleRate
	}
	if o.BufferTimeMS != nil {
		c.BufferTimeMS = *o.BufferTimeMS
	}
	if o.Dither != nil {
		c.Dither = *o.Dither
	}
	return nil
}

// applyKV applies one case-insensitive "key=value" or bare boolean flag
// pair (e.g. from one FS_<KEY> environment variable or --fs=k=v,k=v) to c.
func (c *Config) applyKV(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "driver":
		c.Driver = value
	case "banner":
		c.Banner = true
	case "no-banner":
		c.Banner = false
	case "wait":
		c.Wait = true
	case "no-wait":
		c.Wait = false
	case "deinit-check":
		c.DeinitCheck = true
	case "no-deinit-check":
		c.DeinitCheck = false
	case "dither":
		c.Dither = true
	case "no-dither":
		c.Dither = false
	case "session":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: session=%q: %w", value, errs.InvalidArgument)
		}
		c.Session = n
	case "channels":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("config: channels=%q: %w", value, errs.InvalidArgument)
		}
		c.Channels = n
	case "channelmode":
		m, err := ParseChannelMode(value)
		if err != nil {
			return err
		}
		c.ChannelMode = m
	case "sampleformat":
		f, err := ParseSampleFormat(value)
		if err != nil {
			return err
		}
		c.SampleFormat = f
	case "samplerate":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("config: samplerate=%q: %w", value, errs.InvalidArgument)
		}
		c.SampleRate = n
	case "buffertime":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 5000 {
			return fmt.Errorf("config: buffertime=%q must be in [1,5000]: %w", value, errs.InvalidArgument)
		}
		c.BufferTimeMS = n
	default:
		return fmt.Errorf("config: unrecognised key %q: %w", key, errs.InvalidArgument)
	}
	return nil
}

// channelModeNames mirrors sample.ChannelMode's String() spelling so
// config files and flags can name a mode the same way the engine logs it.
var channelModeNames = map[string]sample.ChannelMode{
	"mono":             sample.Mono,
	"stereo":           sample.Stereo,
	"stereo2.1":        sample.Stereo21,
	"stereo3.0":        sample.Stereo30,
	"stereo3.1":        sample.Stereo31,
	"surround3.0":      sample.Surround30,
	"surround3.1":      sample.Surround31,
	"surround4.0-2f2r": sample.Surround40_2F2R,
	"surround4.1-2f2r": sample.Surround41_2F2R,
	"surround4.0-3f1r": sample.Surround40_3F1R,
	"surround4.1-3f1r": sample.Surround41_3F1R,
	"surround5.0":      sample.Surround50,
	"surround5.1":      sample.Surround51,
}

// ParseChannelMode resolves a §6 channelmode= name, case-insensitively.
func ParseChannelMode(name string) (sample.ChannelMode, error) {
	if m, ok := channelModeNames[strings.ToLower(name)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("config: unknown channelmode %q: %w", name, errs.InvalidArgument)
}

var sampleFormatNames = map[string]sample.Format{
	"u8":  sample.FormatU8,
	"s16": sample.FormatS16,
	"s24": sample.FormatS24,
	"s32": sample.FormatS32,
	"f32": sample.FormatF32,
}

// ParseSampleFormat resolves a §6 sampleformat= name, case-insensitively.
func ParseSampleFormat(name string) (sample.Format, error) {
	if f, ok := sampleFormatNames[strings.ToLower(name)]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("config: unknown sampleformat %q: %w", name, errs.InvalidArgument)
}

// envKeys maps each §6 configuration key to its FS_<KEY> environment
// variable name.
var envKeys = map[string]string{
	"driver":       "FS_DRIVER",
	"banner":       "FS_BANNER",
	"wait":         "FS_WAIT",
	"deinit-check": "FS_DEINIT_CHECK",
	"session":      "FS_SESSION",
	"channels":     "FS_CHANNELS",
	"channelmode":  "FS_CHANNELMODE",
	"sampleformat": "FS_SAMPLEFORMAT",
	"samplerate":   "FS_SAMPLERATE",
	"buffertime":   "FS_BUFFERTIME",
	"dither":       "FS_DITHER",
}

// boolKeys identifies which §6 keys take a boolean value (read from their
// env var as "true"/"false" rather than the key/no-key flag spelling).
var boolKeys = map[string]bool{
	"banner": true, "wait": true, "deinit-check": true, "dither": true,
}

// envOverlay applies one FS_<KEY> environment variable per recognised §6
// key (later than any config file, earlier than command-line flags).
func envOverlay(c *Config) error {
	for key, envName := range envKeys {
		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			continue
		}
		if boolKeys[key] {
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("config: %s=%q: %w", envName, value, errs.InvalidArgument)
			}
			if !enabled {
				key = "no-" + key
			}
			if err := c.applyKV(key, ""); err != nil {
				return err
			}
			continue
		}
		if err := c.applyKV(key, value); err != nil {
			return err
		}
	}
	return nil
}

func applyCommaList(c *Config, raw string) error {
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if err := c.applyKV(key, value); err != nil {
			return err
		}
	}
	return nil
}

// FlagSet wraps the command-line flags §6 recognises (--fs-help,
// --fs=k=v,k=v, plus a convenience --driver), registered on a caller-
// supplied pflag.FlagSet so a program can add its own flags to the same
// set. The option list is a plain pflag string flag named "fs"; the colon
// spelling --fs:k=v is not recognised and pflag reports it as an unknown
// flag.
type FlagSet struct {
	fsOpts *string
	help   *bool
	driver *string
}

// NewFlagSet registers FusionSound's recognised command-line flags on fs.
func NewFlagSet(fs *pflag.FlagSet) *FlagSet {
	return &FlagSet{
		fsOpts: fs.String("fs", "", "comma-separated driver options, --fs=k=v,k=v"),
		help:   fs.Bool("fs-help", false, "list recognised configuration keys and exit"),
		driver: fs.String("driver", "", "output driver (portaudio, dummy)"),
	}
}

// HelpRequested reports whether --fs-help was passed.
func (f *FlagSet) HelpRequested() bool { return f.help != nil && *f.help }

// Apply merges parsed flag values into c, last-wins over any file/env
// layer already applied.
func (f *FlagSet) Apply(c *Config) error {
	if f.driver != nil && *f.driver != "" {
		c.Driver = *f.driver
	}
	if f.fsOpts != nil && *f.fsOpts != "" {
		if err := applyCommaList(c, *f.fsOpts); err != nil {
			return err
		}
	}
	return nil
}

// HelpText renders the --fs-help listing of recognised keys (§6).
func HelpText() string {
	var b strings.Builder
	b.WriteString("recognised configuration keys:\n")
	for _, line := range []string{
		"driver=<name>           output driver, e.g. portaudio, dummy",
		"banner | no-banner      print/suppress the startup banner",
		"wait | no-wait          block for device readiness at open",
		"deinit-check | no-deinit-check   verify clean device teardown",
		"session=<int>           session identifier",
		"channels=<1..N>         physical output channel count",
		"channelmode=<name>      mono, stereo, stereo2.1, stereo3.0, stereo3.1,",
		"                        surround3.0, surround3.1, surround4.0-2f2r,",
		"                        surround4.1-2f2r, surround4.0-3f1r,",
		"                        surround4.1-3f1r, surround5.0, surround5.1",
		"sampleformat=<name>     u8, s16, s24, s32, f32",
		"samplerate=<int>        output sample rate in Hz",
		"buffertime=<1..5000>    device buffer size in milliseconds",
		"dither | no-dither      enable/disable U8/S16 quantisation dither",
	} {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Load assembles Config from every layer in §6's override order: engine
// defaults, system file, user file, per-program system file, per-program
// user file, environment, then (if fs is non-nil) command-line flags.
// A missing config file is not an error; a malformed one is.
func Load(fs *FlagSet) (Config, error) {
	cfg := Default()

	paths := []string{
		SystemConfigPath(),
		UserConfigPath(),
		ProgramSystemConfigPath(),
		ProgramUserConfigPath(),
	}
	for _, path := range paths {
		overlay, err := loadFileOverlay(path)
		if err != nil {
			return Config{}, err
		}
		if err := cfg.applyOverlay(overlay); err != nil {
			return Config{}, err
		}
	}

	if err := envOverlay(&cfg); err != nil {
		return Config{}, err
	}

	if fs != nil {
		if err := fs.Apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}
