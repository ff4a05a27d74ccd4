// Package sstable - Sorted String Table (SSTable) is the on-disk format of a
// sorted partition. It holds records in ascending (key, value) order, so a
// whole partition can be streamed back without sorting again.
//
// Layout:
//
//	header   magic "LCST" | format version
//	records  recordio-encoded records, ascending
//	footer   end of records | record count | first key | last key | magic "LCND"
//
// The footer carries the key range of the table, so a partition's bounds can
// be recovered from its sorted file alone. Duplicate records are allowed;
// records out of order are rejected by the writer.
//
// Basic usage:
//
//	f, err := os.Create("sorted/0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	w, err := sstable.OpenWriter(f, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range sortedRecords {
//	    if err := w.Add(rec); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := w.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := sstable.OpenReaderFile("sorted/0", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	for rec := range r.All() {
//	    fmt.Println(rec)
//	}
//	if err := r.Err(); err != nil {
//	    log.Fatal(err)
//	}
package sstable
