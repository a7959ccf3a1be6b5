package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"periph.io/x/host/v3"

	"github.com/mdclyburn/flexbed"
	"github.com/mdclyburn/flexbed/internal/config"
	"github.com/mdclyburn/flexbed/internal/input"
	"github.com/mdclyburn/flexbed/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("flexbed", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: flexbed [-b {code|json}] [-t {code}] [-h] [<testbed-config-path>]")
		fs.PrintDefaults()
	}

	outputMode := fs.String("b", "code", "evaluation output mode: code or json")
	traceMode := fs.String("t", "code", "trace decode mode: code (only mode implemented)")
	verbose := fs.Bool("v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	if *outputMode != "code" && *outputMode != "json" {
		fmt.Fprintf(os.Stderr, "flexbed: unrecognized -b mode %q (want code or json)\n", *outputMode)
		return 1
	}
	if *traceMode != "code" {
		fmt.Fprintf(os.Stderr, "flexbed: -t %q is validated but not implemented; only \"code\" runs today\n", *traceMode)
		return 1
	}

	configPath := "testbed.json"
	if fs.NArg() > 0 {
		configPath = fs.Arg(0)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logConfig))
	log := logging.Default().With("main")

	if _, err := host.Init(); err != nil {
		log.Errorf("initializing host drivers: %v", err)
		return 1
	}

	tbConfig, err := config.Load(configPath)
	if err != nil {
		log.Errorf("loading testbed config %s: %v", configPath, err)
		return 1
	}

	tests, err := input.LoadSuite(tbConfig.TestSuitePath)
	if err != nil {
		log.Errorf("loading test suite %s: %v", tbConfig.TestSuitePath, err)
		return 1
	}

	tb, err := flexbed.Open(flexbed.Config{Testbed: tbConfig})
	if err != nil {
		log.Errorf("opening testbed: %v", err)
		return 1
	}

	evaluations := tb.Run(tests)

	switch *outputMode {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(evaluations); err != nil {
			log.Errorf("encoding evaluations: %v", err)
			return 1
		}
	default:
		for _, eval := range evaluations {
			fmt.Println(eval.String())
		}
	}

	return 0
}
