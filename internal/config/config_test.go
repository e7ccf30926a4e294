package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/fusionsound/fusionsound/internal/config"
	"github.com/fusionsound/fusionsound/internal/sample"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Driver != "portaudio" {
		t.Errorf("expected default driver 'portaudio', got %q", cfg.Driver)
	}
	if cfg.ChannelMode != sample.Stereo {
		t.Errorf("expected default channelmode stereo, got %v", cfg.ChannelMode)
	}
	if cfg.SampleFormat != sample.FormatS16 {
		t.Errorf("expected default sampleformat s16, got %v", cfg.SampleFormat)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("expected default samplerate 44100, got %d", cfg.SampleRate)
	}
	if !cfg.Dither {
		t.Error("expected dither enabled by default")
	}
	if !cfg.Banner {
		t.Error("expected banner enabled by default")
	}
}

func TestLoadUserConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := config.UserConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	yamlBody := "driver: dummy\nchannelmode: surround5.1\nsampleformat: f32\nsamplerate: 48000\nno-dither: true\ndither: false\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "dummy" {
		t.Errorf("driver: want dummy got %q", cfg.Driver)
	}
	if cfg.ChannelMode != sample.Surround51 {
		t.Errorf("channelmode: want surround5.1 got %v", cfg.ChannelMode)
	}
	if cfg.SampleFormat != sample.FormatF32 {
		t.Errorf("sampleformat: want f32 got %v", cfg.SampleFormat)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("samplerate: want 48000 got %d", cfg.SampleRate)
	}
	if cfg.Dither {
		t.Errorf("expected dither disabled by file overlay")
	}
}

func TestLoadMissingFilesFallBackToDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "portaudio" {
		t.Errorf("expected default driver with no config files present, got %q", cfg.Driver)
	}
}

func TestLoadCorruptFileIsError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := config.UserConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not: valid: yaml: :::"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(nil); err == nil {
		t.Error("expected Load to fail on malformed config file")
	}
}

func TestEnvOverlayAppliesPerKeyVars(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FS_DRIVER", "dummy")
	t.Setenv("FS_CHANNELS", "6")
	t.Setenv("FS_SAMPLERATE", "96000")
	t.Setenv("FS_BANNER", "false")

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "dummy" {
		t.Errorf("driver: want dummy got %q", cfg.Driver)
	}
	if cfg.Channels != 6 {
		t.Errorf("channels: want 6 got %d", cfg.Channels)
	}
	if cfg.SampleRate != 96000 {
		t.Errorf("samplerate: want 96000 got %d", cfg.SampleRate)
	}
	if cfg.Banner {
		t.Error("expected banner disabled by FS_BANNER=false")
	}
}

func TestFlagSetOverridesFileAndEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FS_DRIVER", "dummy")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fsc := config.NewFlagSet(fs)
	if err := fs.Parse([]string{"--driver=portaudio", "--fs=buffertime=20,dither"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := config.Load(fsc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "portaudio" {
		t.Errorf("expected flag to override env, got driver=%q", cfg.Driver)
	}
	if cfg.BufferTimeMS != 20 {
		t.Errorf("buffertime: want 20 got %d", cfg.BufferTimeMS)
	}
	if !cfg.Dither {
		t.Error("expected dither enabled by --fs options")
	}
}

func TestFlagSetHelpRequested(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fsc := config.NewFlagSet(fs)
	if err := fs.Parse([]string{"--fs-help"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !fsc.HelpRequested() {
		t.Error("expected HelpRequested to report true after --fs-help")
	}
}

func TestParseChannelModeUnknown(t *testing.T) {
	if _, err := config.ParseChannelMode("quadrophonic"); err == nil {
		t.Error("expected error for unknown channelmode")
	}
}

func TestParseSampleFormatUnknown(t *testing.T) {
	if _, err := config.ParseSampleFormat("s64"); err == nil {
		t.Error("expected error for unknown sampleformat")
	}
}

func TestBufferTimeOutOfRangeRejected(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FS_BUFFERTIME", "9000")
	if _, err := config.Load(nil); err == nil {
		t.Error("expected buffertime out of [1,5000] to be rejected")
	}
}

func TestHelpTextListsKeys(t *testing.T) {
	text := config.HelpText()
	for _, want := range []string{"driver=", "channelmode=", "sampleformat=", "buffertime="} {
		if !strings.Contains(text, want) {
			t.Errorf("HelpText missing %q", want)
		}
	}
}
