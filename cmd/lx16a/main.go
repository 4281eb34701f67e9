package main

import (
	"context"
	"flag"
	"os"

	"github.com/hipsterbrown/lx16a-servo/logger"
	"github.com/hipsterbrown/lx16a-servo/lx16a"
	"github.com/hipsterbrown/lx16a-servo/transports"
)

var (
	portName    = flag.String("port", "", "Serial port the servo bus is attached to.")
	baudRate    = flag.Int("baud", transports.DefaultBaudRate, "Serial baud rate.")
	profilePath = flag.String("profile", "", "JSON servo profile to load.")
	applyOnOpen = flag.Bool("apply", false, "Push the loaded profile to the servos on start.")
	attempts    = flag.Int("retries", 3, "Attempts per command, including the first.")
	debug       = flag.Bool("debug", false, "Log every bus exchange.")
	evalOnly    = flag.Bool("e", false, "Evaluation only, no interactive shell.")
)

func main() {
	flag.Parse()

	level := logger.InfoLevel
	if *debug {
		level = logger.DebugLevel
	}
	log := logger.NewSlogWithOptions(logger.Options{
		Level:   level,
		Console: true,
		Output:  os.Stderr,
	})
	logger.SetLogger(log)

	s := New(log)
	s.Interactive = !*evalOnly
	s.Policy = lx16a.RetryPolicy{Attempts: *attempts}

	if *profilePath != "" {
		profile, err := lx16a.LoadProfile(*profilePath)
		if err != nil {
			log.Fatal("load profile failed", "path", *profilePath, "error", err)
		}
		s.Profile = profile
	}

	if *portName != "" {
		if err := s.Open(*portName, *baudRate); err != nil {
			log.Fatal("open bus failed", "port", *portName, "error", err)
		}
		defer s.Close()

		if *applyOnOpen && s.Profile != nil {
			if err := s.Profile.Apply(context.Background(), s.Bus); err != nil {
				log.Fatal("apply profile failed", "error", err)
			}
		}
	}

	if err := s.Run(flag.Args()...); err != nil {
		log.Fatal("shell failed", "error", err)
	}
}
