package publisher

import (
	"fmt"
	"strings"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// Group is every record of one series name, with its shared metadata.
type Group struct {
	Name     string
	Metadata metadata.Metadata
	Records  []metadata.Record
}

// RecordSet indexes parsed records by name, keeping the parser's
// emission order inside each name.
type RecordSet struct {
	groups map[string]*Group
	order  []string
}

// GroupRecords builds a RecordSet. Records sharing a name must share
// their metadata; a mismatch means a parser bug and aborts the run.
func GroupRecords(records []metadata.MetadataRecord) (*RecordSet, error) {
	set := &RecordSet{groups: make(map[string]*Group)}

	for _, mr := range records {
		group, ok := set.groups[mr.Record.Name]
		if !ok {
			group = &Group{Name: mr.Record.Name, Metadata: mr.Metadata}
			set.groups[mr.Record.Name] = group
			set.order = append(set.order, mr.Record.Name)
		} else if group.Metadata != mr.Metadata {
			return nil, fmt.Errorf("records named %s carry conflicting metadata", mr.Record.Name)
		}
		group.Records = append(group.Records, mr.Record)
	}

	return set, nil
}

// WithPrefix returns the groups whose name starts with prefix, in
// first-seen order.
func (s *RecordSet) WithPrefix(prefix string) []*Group {
	var groups []*Group
	for _, name := range s.order {
		if strings.HasPrefix(name, prefix) {
			groups = append(groups, s.groups[name])
		}
	}
	return groups
}

// Len returns the number of distinct record names.
func (s *RecordSet) Len() int {
	return len(s.order)
}
