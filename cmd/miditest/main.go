package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	goserial "go.bug.st/serial"

	"go-cvbridge/engine"
	"go-cvbridge/hw"
	cvmidi "go-cvbridge/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		monitor(arg(2))
	case "note":
		sendNote(arg(2), arg(3))
	case "poll":
		pollDevices()
	case "frames":
		dumpFrames(arg(2))
	default:
		usage()
	}
}

func arg(i int) string {
	if i < len(os.Args) {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("MIDI / CV board test scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                - List MIDI ports and serial devices")
	fmt.Println("  monitor [port]      - Print incoming records as the engine sees them")
	fmt.Println("  note <port> [note]  - Send a test note (default 60)")
	fmt.Println("  poll                - Poll for device changes")
	fmt.Println("  frames <device>     - Dump input frames from a CV board")
}

func getPorts() ([]drivers.In, []drivers.Out, bool) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: midi.GetInPorts(), outs: midi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, true
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return nil, nil, false
	}
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, ok := getPorts()
	if !ok {
		return
	}
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}

	fmt.Println("\n=== Serial Devices ===")
	devices, err := hw.Ports()
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	for _, d := range devices {
		fmt.Printf("  %s\n", d)
	}
}

func findIn(name string) drivers.In {
	ins, _, _ := getPorts()
	for _, p := range ins {
		if name == "" || strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			return p
		}
	}
	return nil
}

func findOut(name string) drivers.Out {
	_, outs, _ := getPorts()
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			return p
		}
	}
	return nil
}

func monitor(name string) {
	in := findIn(name)
	if in == nil {
		fmt.Println("No matching input port")
		return
	}
	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", in.String())

	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		rec, ok := cvmidi.ToRecord(msg)
		if !ok {
			fmt.Printf("%8d  (ignored) %s\n", timestampms, msg)
			return
		}
		if rec.Kind.IsRealtime() {
			if rec.Kind != engine.Clock {
				fmt.Printf("%8d  %s\n", timestampms, rec.Kind)
			}
			return
		}
		fmt.Printf("%8d  %-10s ch%-2d %3d %3d\n", timestampms, rec.Kind, rec.Channel, rec.Data1, rec.Data2)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

func sendNote(name, noteArg string) {
	if name == "" {
		usage()
		return
	}
	note := 60
	if noteArg != "" {
		n, err := strconv.Atoi(noteArg)
		if err != nil || n < 0 || n > 127 {
			fmt.Printf("Bad note %q\n", noteArg)
			return
		}
		note = n
	}

	out := findOut(name)
	if out == nil {
		fmt.Println("No matching output port")
		return
	}
	send, err := midi.SendTo(out)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	for _, m := range []engine.OutMessage{
		{Kind: engine.NoteOn, Data1: uint8(note), Data2: 100},
		{Kind: engine.NoteOff, Data1: uint8(note)},
	} {
		msg, _ := cvmidi.ToMessage(m)
		if err := send(msg); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Sent %s\n", msg)
		time.Sleep(500 * time.Millisecond)
	}
	fmt.Println("Done!")
}

func pollDevices() {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	lastIn := ""
	lastOut := ""

	for {
		ins, outs, _ := getPorts()

		var inNames, outNames []string
		for _, p := range ins {
			inNames = append(inNames, p.String())
		}
		for _, p := range outs {
			outNames = append(outNames, p.String())
		}

		currentIn := strings.Join(inNames, ",")
		currentOut := strings.Join(outNames, ",")

		if currentIn != lastIn || currentOut != lastOut {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)

			for _, name := range inNames {
				for _, pat := range cvmidi.DefaultExclude {
					if strings.Contains(strings.ToLower(name), strings.ToLower(pat)) {
						fmt.Printf("  -> %s would be excluded\n", name)
						break
					}
				}
			}

			lastIn = currentIn
			lastOut = currentOut
		}

		time.Sleep(2 * time.Second)
	}
}

func dumpFrames(device string) {
	if device == "" {
		usage()
		return
	}
	port, err := goserial.Open(device, &goserial.Mode{BaudRate: hw.DefaultBaud})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer port.Close()
	fmt.Printf("Reading frames from %s. Ctrl+C to exit.\n", device)

	var reader hw.FrameReader
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		frames, ferr := reader.Feed(buf[:n])
		if ferr != nil {
			fmt.Printf("  discarded: %v\n", ferr)
		}
		for _, f := range frames {
			if f.Cmd != hw.CmdInputs {
				fmt.Printf("  cmd %#02x (%d bytes)\n", f.Cmd, len(f.Payload))
				continue
			}
			samples, err := hw.DecodeInputs(f.Payload)
			if err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			var parts []string
			for i, s := range samples {
				g := "-"
				if s.Gate {
					g = "G"
				}
				parts = append(parts, fmt.Sprintf("%d:%+6d%s", i+1, s.CV, g))
			}
			fmt.Println("  " + strings.Join(parts, " "))
		}
	}
}
