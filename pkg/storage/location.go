package storage

import (
	"path/filepath"
)

// TempSuffix marks an incomplete download
const TempSuffix = ".part"

// Location holds the on-disk paths of one scene
type Location struct {
	// Dir is <basedir>/<orderID>
	Dir string
	// Final is Dir/<fileName>; its existence means the scene is stored
	Final string
	// Temp is Final + ".part"; its size is the resume offset
	Temp string
}

// Locate computes the paths for a file of an order below baseDir
func Locate(baseDir, orderID, fileName string) Location {
	dir := filepath.Join(baseDir, orderID)
	final := filepath.Join(dir, fileName)
	return Location{
		Dir:   dir,
		Final: final,
		Temp:  final + TempSuffix,
	}
}
