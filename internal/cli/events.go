package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gravindex/internal/ir"
)

// loadEvents reads an event file. Files ending in .json, .jsonl or
// .ndjson hold one JSON event per line; anything else is a YAML list in
// the scenario event format.
func loadEvents(path string) ([]ir.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return decodeNDJSON(data)
	default:
		var events []ir.Event
		if err := yaml.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return events, nil
	}
}

// decodeNDJSON keeps numbers as json.Number so uint256 params survive
// until the registry decodes them.
func decodeNDJSON(data []byte) ([]ir.Event, error) {
	var events []ir.Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var ev ir.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
