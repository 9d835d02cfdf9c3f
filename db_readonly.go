package quarry

// OpenForReadOnly opens an existing database without write access. Every
// mutating operation on the returned handle fails with a not-supported
// error; reads, snapshots, and iterators behave as on a writable handle.
//
// CreateIfMissing is ignored: a read-only open never creates the database.
func OpenForReadOnly(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		o := *opts
		opts = &o
	}
	opts.CreateIfMissing = false
	return openDB(path, opts, true)
}
