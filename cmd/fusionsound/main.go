// Command fusionsound opens an output device, plays back WAVE files given
// on the command line, and exits when the last one finishes.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/fusionsound/fusionsound/internal/config"
	"github.com/fusionsound/fusionsound/internal/device"
	"github.com/fusionsound/fusionsound/internal/device/dummy"
	"github.com/fusionsound/fusionsound/internal/device/portaudiodev"
	"github.com/fusionsound/fusionsound/internal/engine"
	"github.com/fusionsound/fusionsound/internal/errs"
	"github.com/fusionsound/fusionsound/internal/musicprovider"
)

func main() {
	fsc := config.NewFlagSet(pflag.CommandLine)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - FusionSound multi-channel mixer server.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: fusionsound [options] file.wav [file.wav ...]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if fsc.HelpRequested() {
		fmt.Fprint(os.Stderr, config.HelpText())
		return
	}

	cfg, err := config.Load(fsc)
	if err != nil {
		log.Fatalf("[fusionsound] config: %v", err)
	}

	dev, err := openDevice(cfg.Driver)
	if err != nil {
		log.Fatalf("[fusionsound] %v", err)
	}

	eng, err := engine.New(cfg, dev)
	if err != nil {
		log.Fatalf("[fusionsound] engine: %v", err)
	}
	defer eng.Destroy()

	files := pflag.Args()
	if len(files) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	creator := engine.NewCreator(1.0)
	for _, path := range files {
		if err := playFile(eng, creator, path); err != nil {
			log.Printf("[fusionsound] %s: %v", path, err)
		}
	}
}

// openDevice resolves the --driver/driver= configuration key into a
// concrete OutputDevice backend (§6 "driver=<name>").
func openDevice(driver string) (device.Device, error) {
	switch driver {
	case "", "portaudio":
		return portaudiodev.New(-1), nil
	case "dummy":
		return dummy.New(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (known: portaudio, dummy)", driver)
	}
}

// playFile probes path, drives it into a fresh Stream, and blocks until
// the provider reports FINISHED.
func playFile(eng *engine.Engine, creator *engine.Creator, path string) error {
	provider, err := eng.CreateMusicProvider(path)
	if err != nil {
		return err
	}
	defer provider.Close()

	desc := provider.StreamDescription()
	s, err := eng.CreateStream(creator, engine.StreamDescriptor{
		ChannelMode: desc.ChannelMode,
		Format:      desc.Format,
		SampleRate:  desc.SampleRate,
		HasMode:     true,
		HasFormat:   true,
		HasRate:     true,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- provider.PlayToStream(s) }()

	for {
		status, err := provider.WaitStatus(musicprovider.StatusFinished, 200)
		if status == musicprovider.StatusFinished {
			break
		}
		if err != nil && !errs.Is(err, errs.Timeout) {
			return err
		}
	}
	s.Wait(0)

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		return nil
	}
}
