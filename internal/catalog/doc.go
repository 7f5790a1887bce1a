// Package catalog turns fetched photo records into the named set a run
// mirrors.
//
// # Reduce
//
// Reduce chooses one rendition per record:
//
//	photo, err := catalog.Reduce(rec)
//	if errors.KindOf(err) == errors.KindDataQuality {
//	    // skip the record, keep going
//	}
//
// # Allocate
//
// Allocate names the reduced photos. Names derive from the like counter, so
// collisions are expected and resolved with the upload time of the earlier
// photo:
//
//	named := catalog.Allocate(photos)
//	// 10.jpg, 10-1672531200.jpg, 7.jpg, ...
package catalog
