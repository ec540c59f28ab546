package metadata

import (
	"fmt"
	"regexp"
	"time"
)

// Record is one timestamped sample of a named series.
type Record struct {
	Name  string
	Time  time.Time
	Unit  Unit
	Value float64
}

// MetadataRecord pairs a record with the description of its series,
// the shape every stream parser emits.
type MetadataRecord struct {
	Metadata Metadata
	Record   Record
}

var identifierPattern = regexp.MustCompile(`^urn:dev:prm:(\d{14})(?:_(.*))?$`)

// RecordName builds the full record identifier of a series on a usage
// point.
func RecordName(usagePointID, series string) string {
	return fmt.Sprintf("urn:dev:prm:%s_%s", usagePointID, series)
}

// ParseIdentifier splits a record identifier into its usage point id
// and optional series path.
func ParseIdentifier(identifier string) (usagePointID, series string, err error) {
	m := identifierPattern.FindStringSubmatch(identifier)
	if m == nil {
		return "", "", fmt.Errorf("unexpected record identifier %q, should be like urn:dev:prm:00000000000000_consumption/power/active/raw", identifier)
	}
	return m[1], m[2], nil
}
