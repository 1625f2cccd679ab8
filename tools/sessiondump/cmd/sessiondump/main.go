package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"skyshield/interceptor/tools/sessiondump"
)

func main() {
	path := flag.String("path", "", "Path to a session directory or manifest.json")
	raw := flag.Bool("json", false, "Dump the full bundle as JSON instead of a summary")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	manifest, header, events, frames, err := sessiondump.SessionBundle(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	if !*raw {
		fmt.Print(sessiondump.Summarize(manifest, header, events, frames))
		return
	}

	payload := struct {
		Manifest interface{}         `json:"manifest"`
		Header   interface{}         `json:"header,omitempty"`
		Events   []sessiondump.Event `json:"events"`
		Frames   []sessiondump.Frame `json:"frames"`
	}{
		Manifest: manifest,
		Header:   header,
		Events:   events,
		Frames:   frames,
	}

	//1.- JSON output keeps the bundle pipeable into jq and friends.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
