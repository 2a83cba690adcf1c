// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/bluenviron/mp4mux/internal/conf"
	"github.com/bluenviron/mp4mux/internal/logger"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"mp4mux.yml",
	"/usr/local/etc/mp4mux.yml",
	"/usr/etc/mp4mux.yml",
	"/etc/mp4mux/mp4mux.yml",
}

type cliArgs struct {
	Version  kong.VersionFlag `help:"print version"`
	Confpath string           `short:"c" help:"path to a config file"`
	Input    string           `arg:"" help:"MPEG-TS file to read"`
	Output   string           `arg:"" help:"MP4 file to write"`
}

// Core is an instance of mp4mux.
type Core struct {
	ctx       context.Context
	ctxCancel func()
	confPath  string
	conf      *conf.Conf
	logger    *logger.Logger
	remuxer   *remuxer
	err       error

	// out
	done chan struct{}
}

// New allocates a core.
func New(args []string) (*Core, bool) {
	var cli cliArgs

	parser, err := kong.New(&cli,
		kong.Name("mp4mux"),
		kong.Description("mp4mux "+version+", converts MPEG-TS files into MP4 files"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is mp4mux.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		done:      make(chan struct{}),
	}

	p.conf, p.confPath, err = conf.Load(cli.Confpath, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		ctxCancel()
		return nil, false
	}

	err = p.createResources(cli.Input, cli.Output)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		ctxCancel()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close interrupts Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit and returns the remuxing error, if any.
func (p *Core) Wait() error {
	<-p.done
	return p.err
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	remuxerDone := make(chan error)
	go func() {
		remuxerDone <- p.remuxer.run()
	}()

outer:
	for {
		select {
		case err := <-remuxerDone:
			p.err = err
			break outer

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			p.ctxCancel()

		case <-p.ctx.Done():
			p.err = <-remuxerDone
			break outer
		}
	}

	p.ctxCancel()

	if p.err != nil {
		p.Log(logger.Error, "%s", p.err)
	}

	p.closeResources()
}

func (p *Core) createResources(inputPath string, outputPath string) error {
	p.logger = &logger.Logger{
		Level:        logger.Level(p.conf.LogLevel),
		Destinations: p.conf.LogDestinations,
		File:         p.conf.LogFile,
	}
	err := p.logger.Initialize()
	if err != nil {
		p.logger = nil
		return err
	}

	p.Log(logger.Info, "mp4mux %s", version)

	if p.confPath != "" {
		p.Log(logger.Debug, "configuration loaded from %s", p.confPath)
	}

	p.remuxer = &remuxer{
		ctx:        p.ctx,
		inputPath:  inputPath,
		outputPath: outputPath,
		conf:       p.conf,
		parent:     p,
	}
	err = p.remuxer.initialize()
	if err != nil {
		p.remuxer = nil
		return err
	}

	return nil
}

func (p *Core) closeResources() {
	if p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}
