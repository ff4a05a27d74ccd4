// Package recordio implements the binary encoding of record.Record used by
// sorted partition files. Every record starts with magic bytes, followed by
// the key as a little-endian uint64 and the length-prefixed value.
//
// Basic usage:
//
//	var buf bytes.Buffer
//	n, err := recordio.Write(&buf, record.Record{Key: 1700000000, Value: "abc"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := recordio.NewReader(&buf)
//	for rec := range r.All() {
//	    fmt.Println(rec)
//	}
//	if err := r.Err(); err != nil {
//	    log.Fatal(err)
//	}
package recordio
