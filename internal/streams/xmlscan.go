package streams

import (
	"encoding/xml"
	"strings"
	"time"
)

// readText consumes the element the decoder just entered and returns
// its trimmed character data.
func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// parisTZ is the zone of naive timestamps in stream files; most of
// them carry no zone designator.
var parisTZ = mustLoadParis()

func mustLoadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
	return loc
}

// parseStreamTime parses a stream timestamp, zone-qualified or naive
// local time.
func parseStreamTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, parisTZ); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, parisTZ)
}
