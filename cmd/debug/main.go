package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/purifier-controller/db"
	"github.com/thatsimonsguy/purifier-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, configFile, user, workDir, binary, unitPath string
	var limit int
	var olderThan time.Duration
	var enable bool
	flag.StringVar(&dbPath, "db", "data/purifier.db", "Path to the SQLite history database")
	flag.StringVar(&command, "cmd", "", "Command to run: history, overrides, prune, install-service")
	flag.IntVar(&limit, "limit", 20, "Number of rows to show")
	flag.DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff for prune")
	flag.StringVar(&configFile, "config-file", "config.json", "Config file passed to the installed service")
	flag.StringVar(&user, "user", "pi", "User the installed service runs as")
	flag.StringVar(&workDir, "workdir", "", "Working directory for the installed service (default: current directory)")
	flag.StringVar(&binary, "binary", "/usr/local/bin/purifier-controller", "Controller binary for the installed service")
	flag.StringVar(&unitPath, "unit", "/etc/systemd/system/purifier-controller.service", "Where to write the systemd unit")
	flag.BoolVar(&enable, "enable", false, "Enable and start the unit after install-service")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of purifier-debug:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var err error
	switch command {
	case "history":
		err = db.PrintHistoryCLI(os.Stdout, dbPath, limit)
	case "overrides":
		err = db.PrintOverridesCLI(os.Stdout, dbPath, limit)
	case "prune":
		var removed int64
		removed, err = db.PruneCyclesCLI(dbPath, olderThan)
		if err == nil {
			fmt.Printf("Removed %d cycles older than %s\n", removed, olderThan)
		}
	case "install-service":
		if workDir == "" {
			workDir, _ = os.Getwd()
		}
		svc := startup.Service{
			UnitPath:   unitPath,
			User:       user,
			WorkDir:    workDir,
			Binary:     binary,
			ConfigFile: configFile,
			DBPath:     dbPath,
		}
		err = startup.InstallService(svc)
		if err == nil && enable {
			err = startup.EnableService(svc)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
