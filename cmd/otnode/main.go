// Command otnode runs a simulated Thread node on the host. Nodes started
// on the same machine (or LAN segment) share a multicast group that plays
// the part of the 802.15.4 channel.
//
// Usage:
//
//	otnode [flags]
//
// Flags:
//
//	-config string     YAML or TOML configuration file
//	-group string      multicast group of the simulated radio
//	-port int          multicast port of the simulated radio
//	-iface string      interface to join the group on
//	-settings string   file persisting engine settings across restarts
//	-log-level string  trace, debug, info, warn, error or off
//	-autostart         bring up IPv6 and Thread after applying the dataset
//	-no-shell          run without the interactive shell until interrupted
//
// Examples:
//
//	# Two nodes on the default group, each forming its own partition
//	otnode -config node.yaml -settings /tmp/a.cbor
//	otnode -config node.yaml -settings /tmp/b.cbor
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat"
	enginesim "github.com/ystepanoff/otplat/engine/sim"
	"github.com/ystepanoff/otplat/internal/config"
	"github.com/ystepanoff/otplat/internal/logging"
	"github.com/ystepanoff/otplat/settings"
)

type flags struct {
	configFile string
	group      string
	port       int
	iface      string
	settings   string
	logLevel   string
	autostart  bool
	noShell    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("otnode", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "YAML or TOML configuration file")
	fs.StringVar(&f.group, "group", "", "multicast group of the simulated radio")
	fs.IntVar(&f.port, "port", 0, "multicast port of the simulated radio")
	fs.StringVar(&f.iface, "iface", "", "interface to join the group on")
	fs.StringVar(&f.settings, "settings", "", "file persisting engine settings")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn, error or off")
	fs.BoolVar(&f.autostart, "autostart", false, "bring up IPv6 and Thread after applying the dataset")
	fs.BoolVar(&f.noShell, "no-shell", false, "run without the interactive shell")
	return f, fs.Parse(args)
}

// loadConfig reads the config file, if any, and lets flags override it.
func loadConfig(f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return config.Config{}, err
		}
	}
	if f.group != "" {
		cfg.Radio.Group = f.group
	}
	if f.port != 0 {
		cfg.Radio.Port = f.port
	}
	if f.iface != "" {
		cfg.Radio.Interface = f.iface
	}
	if f.settings != "" {
		cfg.Node.SettingsFile = f.settings
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.autostart {
		cfg.Node.AutoStart = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, console io.Writer) (zerolog.Logger, io.Closer) {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		lc.Level = lvl
	}
	lc.NoColor = cfg.Log.NoColor
	lc.File = cfg.Log.File
	logging.ApplyEnvOverrides(&lc)
	return logging.New(lc, console, "otnode")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "otnode:", err)
		os.Exit(1)
	}
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sh *shell
	console := io.Writer(os.Stderr)
	if !f.noShell {
		if sh, err = newShell(); err != nil {
			return err
		}
		defer sh.Close()
		console = sh.Stderr()
	}

	log, logCloser := newLogger(cfg, console)
	defer logCloser.Close()

	var store settings.Store = settings.NewMemory()
	if cfg.Node.SettingsFile != "" {
		if store, err = settings.OpenFile(cfg.Node.SettingsFile); err != nil {
			return err
		}
	}

	delay, _ := cfg.AttachDelay()
	eng := enginesim.New(
		enginesim.WithLogger(log),
		enginesim.WithAttachDelay(delay),
		enginesim.WithMessagePool(cfg.Engine.MessagePool),
	)

	ot, drv, err := otplat.NewSimulated(ctx, eng, cfg.SimRadio(),
		otplat.WithLogger(log),
		otplat.WithSettingsStore(store),
		otplat.WithSocketCapacity(cfg.Node.SocketCapacity),
	)
	if err != nil {
		return err
	}
	defer ot.Close()

	out := console
	if sh != nil {
		out = sh.Stdout()
	}
	n := newNode(ot, eng, drv, out, log)
	if err := n.bootstrap(cfg); err != nil {
		return err
	}

	cmds := make(chan request)
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.run(ctx, cmds)
	}()

	if sh != nil {
		sh.run(ctx, cancel, cmds)
	}
	<-ctx.Done()
	<-done
	return nil
}
