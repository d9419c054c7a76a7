package snapshot

import (
	"encoding/json"
	"fmt"
)

// v1 is the legacy pointer path document: a flat list of typed points and
// a duration, both in milliseconds, without engine configuration.
type v1 struct {
	Points []struct {
		Type string  `json:"type"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
		T    float64 `json:"t"`
	} `json:"points"`
	Duration float64 `json:"duration"`
}

// migrateV1 upgrades a version 1 document to the current layout. Point
// types map one to one onto pointer kinds.
func migrateV1(blob []byte) (document, error) {
	var old v1
	if err := json.Unmarshal(blob, &old); err != nil {
		return document{}, fmt.Errorf("%w: v1: %v", ErrMalformedRecording, err)
	}
	v := Version
	doc := document{
		Version:  &v,
		Events:   make([]eventJSON, 0, len(old.Points)),
		Duration: old.Duration,
		Config:   Config{ClockMode: "internal"},
	}
	for i, p := range old.Points {
		switch p.Type {
		case "down", "move", "up":
		default:
			return document{}, fmt.Errorf("%w: v1 point %d has type %q", ErrMalformedRecording, i, p.Type)
		}
		x, y := p.X, p.Y
		doc.Events = append(doc.Events, eventJSON{Kind: p.Type, T: p.T, X: &x, Y: &y})
	}
	return doc, nil
}
