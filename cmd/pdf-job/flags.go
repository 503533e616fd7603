package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

type options struct {
	config    string
	site      string
	slug      string
	output    string
	batchSize int
	hide      []string
	logLevel  string
}

// outputPath names the file after the slug, or the site for static sites
func (o options) outputPath() string {
	if o.output != "" {
		return o.output
	}
	name := o.slug
	if name == "" {
		name = o.site
	}
	return fmt.Sprintf("output-%s.pdf", name)
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("pdf-job", flag.ContinueOnError)
	fs.StringVarP(&opts.config, "config", "c", "configs/pdf-service.yaml", "path to configuration file")
	fs.StringVarP(&opts.site, "site", "s", "", "configured site id (default: the only site)")
	fs.StringVar(&opts.slug, "slug", "", "slug substituted into the site base url")
	fs.StringVarP(&opts.output, "output", "o", "", "output file (default output-<slug>.pdf)")
	fs.IntVarP(&opts.batchSize, "batch-size", "b", 0, "urls per capture context (default from config)")
	fs.StringSliceVar(&opts.hide, "hide", nil, "extra CSS selectors to hide")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	if err := fs.Parse(args[1:]); err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	// A bare positional argument is the slug, like the original one-shot script
	if opts.slug == "" && fs.NArg() > 0 {
		opts.slug = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		return options{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args()[1:])
	}
	if opts.batchSize < 0 {
		return options{}, fmt.Errorf("%w: --batch-size must not be negative", errUsage)
	}
	return opts, nil
}
