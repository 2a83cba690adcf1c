package metadata

// Provider rewrites the metadata of a recording before it is written.
// UpdateMetadataEntries is called once, when the recording is finalized.
// The set must not be retained after the call returns.
type Provider interface {
	UpdateMetadataEntries(entries *Set)
}

// ProviderFunc is an adapter that allows to use a function as Provider.
type ProviderFunc func(entries *Set)

// UpdateMetadataEntries implements Provider.
func (f ProviderFunc) UpdateMetadataEntries(entries *Set) {
	f(entries)
}
