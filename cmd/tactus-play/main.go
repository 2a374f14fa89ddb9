package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cbegin/tactus-go"
)

const defaultPattern = "c3 [e3 g3] c3(3,8) [c4 e4 g4, c2]"

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		tempo      = flag.Float64("tempo", 120, "beats per minute")
		pat        = flag.String("pattern", "", "inline pattern notation")
		patPath    = flag.String("file", "", "path to a pattern file")
		seconds    = flag.Int("seconds", 0, "stop after N seconds (0 = run until interrupted)")
	)
	flag.Parse()

	src, err := resolvePatternInput(*patPath, *pat)
	if err != nil {
		log.Fatal(err)
	}

	session, err := tactus.NewSession(*sampleRate,
		tactus.WithTempo(*tempo),
		tactus.WithOnError(func(slot int, err error) {
			log.Printf("slot %d: %v", slot, err)
		}))
	if err != nil {
		log.Fatal(err)
	}
	if _, err := session.AddCycle(src); err != nil {
		log.Fatal(err)
	}
	if err := session.Monitor(); err != nil {
		log.Fatal(err)
	}
	session.Start()
	fmt.Printf("playing %q at %.0f BPM\n", src, *tempo)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	if *seconds > 0 {
		select {
		case <-interrupt:
		case <-time.After(time.Duration(*seconds) * time.Second):
		}
	} else {
		<-interrupt
	}
	session.Stop()
	if err := session.Close(); err != nil {
		log.Fatal(err)
	}
}

func resolvePatternInput(path, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return defaultPattern, nil
}
