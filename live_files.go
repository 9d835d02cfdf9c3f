package quarry

import "fmt"

// LiveFileMetadata describes one live table file in the database.
type LiveFileMetadata struct {
	// Name is the file name relative to the database directory.
	Name string

	// Level is the LSM level the file lives on.
	Level int

	// Size is the file size in bytes.
	Size int64

	// SmallestKey and LargestKey bound the user keys stored in the file.
	SmallestKey []byte
	LargestKey  []byte

	// SmallestSeqNum and LargestSeqNum bound the sequence numbers of the
	// entries stored in the file.
	SmallestSeqNum uint64
	LargestSeqNum  uint64
}

// GetLiveFilesMetadata returns metadata for every live table file,
// ordered by level and then by key range within each level.
func (db *DB) GetLiveFilesMetadata() ([]LiveFileMetadata, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed.Load() {
		return nil, ErrDBClosed
	}

	levels, err := db.engine.SSTables()
	if err != nil {
		return nil, translateErr(err)
	}

	var files []LiveFileMetadata
	for level, tables := range levels {
		for _, t := range tables {
			files = append(files, LiveFileMetadata{
				Name:           fmt.Sprintf("%06d.sst", t.FileNum),
				Level:          level,
				Size:           int64(t.Size),
				SmallestKey:    copyBytes(t.Smallest.UserKey),
				LargestKey:     copyBytes(t.Largest.UserKey),
				SmallestSeqNum: uint64(t.SmallestSeqNum),
				LargestSeqNum:  uint64(t.LargestSeqNum),
			})
		}
	}
	return files, nil
}
