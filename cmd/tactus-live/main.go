package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cbegin/tactus-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		tempo      = flag.Float64("tempo", 120, "beats per minute")
		seed       = flag.Int64("seed", 0, "enable seeded random alternation when non-zero")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] script.star\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	opts := []tactus.Option{
		tactus.WithTempo(*tempo),
		tactus.WithOnError(func(slot int, err error) {
			log.Printf("slot %d: %v", slot, err)
		}),
	}
	if *seed != 0 {
		opts = append(opts, tactus.WithRandomAlternation(*seed))
	}
	session, err := tactus.NewSession(*sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	engine := session.Script()
	engine.Print = func(msg string) { fmt.Println(msg) }

	if err := engine.Run(path, nil); err != nil {
		log.Fatal(err)
	}
	if err := session.Monitor(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("live: %s (edit and save to reload)\n", path)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	lastMod := modTime(path)
	for {
		select {
		case <-interrupt:
			session.Stop()
			if err := session.Close(); err != nil {
				log.Fatal(err)
			}
			return
		case <-ticker.C:
			mod := modTime(path)
			if mod.After(lastMod) {
				lastMod = mod
				// A reload re-runs the whole script against the live session;
				// scripts swap slots rather than re-add them to stay idempotent.
				if err := engine.Run(path, nil); err != nil {
					log.Printf("reload: %v", err)
					continue
				}
				fmt.Println("reloaded")
			}
		}
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
