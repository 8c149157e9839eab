// Command freqlog runs the frequency logger against simulated hardware and
// inspects its flash image and live read-out link.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/itohio/gofreqmeter/pkg/config"
)

const usage = `freqlog <command> [options]

Commands:
  run      run the instrument
  dump     decode data pages of the flash image as JSON lines
  monitor  print live snapshot lines from the read-out link
  erase    erase the flash image
  status   print settings and memory usage as JSON
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := dispatch(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func dispatch(cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "run":
		return runCmd(args)
	case "dump":
		return dumpCmd(args, stdout)
	case "monitor":
		return monitorCmd(args, stdout)
	case "erase":
		return eraseCmd(args)
	case "status":
		return statusCmd(args, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// loadConfig parses the common flags of fs and loads the configuration.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, string, error) {
	configFlag := fs.String("config", "config.yaml", "Configuration file path")
	imageFlag := fs.String("image", "", "Flash image override")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if *imageFlag != "" {
		cfg.Storage.Image = *imageFlag
	}
	return cfg, *configFlag, nil
}
