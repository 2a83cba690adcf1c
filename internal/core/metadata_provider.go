package core

import (
	"github.com/bluenviron/mp4mux/internal/metadata"
)

const softwareKey = "com.apple.quicktime.software"

// metadataProvider finalizes the metadata of a recording.
type metadataProvider struct {
	software      string
	stripLocation bool
}

// UpdateMetadataEntries implements metadata.Provider.
func (p *metadataProvider) UpdateMetadataEntries(entries *metadata.Set) {
	if p.stripLocation {
		for _, e := range entries.Entries() {
			if _, ok := e.(metadata.Location); ok {
				entries.Remove(e)
			}
		}
	}

	entries.Add(metadata.NewMdtaString(softwareKey, p.software))
}
