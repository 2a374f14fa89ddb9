package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"github.com/cbegin/tactus-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "virtual clock rate")
		tempo      = flag.Float64("tempo", 120, "beats per minute")
		pat        = flag.String("pattern", "c3 e3 g3 e3", "pattern notation")
		portName   = flag.String("port", "", "substring of the MIDI output port name (empty = first port)")
		channel    = flag.Uint("channel", 0, "MIDI channel (0-15)")
		gateMs     = flag.Int("gate", 120, "note length in milliseconds")
		listPorts  = flag.Bool("list", false, "list MIDI output ports and exit")
	)
	flag.Parse()
	defer midi.CloseDriver()

	outs := midi.GetOutPorts()
	if *listPorts {
		for i, p := range outs {
			fmt.Printf("%d: %s\n", i, p.String())
		}
		return
	}
	if len(outs) == 0 {
		log.Fatal("no MIDI output ports")
	}
	out := outs[0]
	if *portName != "" {
		found := false
		for _, p := range outs {
			if strings.Contains(strings.ToLower(p.String()), strings.ToLower(*portName)) {
				out, found = p, true
				break
			}
		}
		if !found {
			log.Fatalf("no MIDI output port matching %q", *portName)
		}
	}
	send, err := midi.SendTo(out)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("sending to %s\n", out.String())

	session, err := tactus.NewSession(*sampleRate,
		tactus.WithTempo(*tempo),
		tactus.WithOnError(func(slot int, err error) {
			log.Printf("slot %d: %v", slot, err)
		}))
	if err != nil {
		log.Fatal(err)
	}
	if _, err := session.AddCycle(*pat); err != nil {
		log.Fatal(err)
	}
	session.Start()

	ch := uint8(*channel)
	gate := time.Duration(*gateMs) * time.Millisecond
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Drive the session off a wall-clock ticker; each tick polls the frames
	// that elapsed and fans events out to the port with their in-block delay.
	const tick = 10 * time.Millisecond
	frames := int(float64(*sampleRate) * tick.Seconds())
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			session.Stop()
			return
		case <-ticker.C:
			blockStart := session.Snapshot().Pos
			for _, ev := range session.Poll(frames) {
				ev := ev
				delay := time.Duration(float64(int64(ev.Time)-blockStart) / float64(*sampleRate) * float64(time.Second))
				if delay < 0 {
					delay = 0
				}
				time.AfterFunc(delay, func() {
					vel := uint8(ev.Note.Volume * 127)
					for _, p := range ev.Note.Pitches {
						key := uint8(p)
						if err := send(midi.NoteOn(ch, key, vel)); err != nil {
							log.Printf("send: %v", err)
							continue
						}
						time.AfterFunc(gate, func() {
							if err := send(midi.NoteOff(ch, key)); err != nil {
								log.Printf("send: %v", err)
							}
						})
					}
				})
			}
		}
	}
}
