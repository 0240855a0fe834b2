package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ftpd/protocol"
)

// FormatEntry renders one listing line: type flag, permission string
// derived from the read-only bit, a constant link count, placeholder
// owner and group, size, modification month/day/time, and the name with a
// trailing slash for directories.
func FormatEntry(info os.FileInfo) string {
	typeFlag, extra := "-", ""
	if info.IsDir() {
		typeFlag, extra = "d", "/"
	}
	rights := "rw-rw-rw-"
	if info.Mode().Perm()&0o200 == 0 {
		rights = "r--r--r--"
	}
	mt := info.ModTime()
	return fmt.Sprintf("%s%s %4d %-9s %-9s %12d %s %2d %02d:%02d %s%s\r\n",
		typeFlag, rights, 1, "anonymous", "anonymous", info.Size(),
		mt.Format("Jan"), mt.Day(), mt.Hour(), mt.Minute(), info.Name(), extra)
}

// RenderListing produces the full directory-listing buffer for the given
// real path. Directories list their immediate entries in name order; a
// plain file lists itself. Entries for which hide returns true are
// skipped; entries whose metadata cannot be read are skipped too, the way
// a live filesystem sometimes demands.
func RenderListing(realPath string, hide func(name string) bool) ([]byte, error) {
	info, err := os.Stat(realPath)
	if err != nil {
		return nil, err
	}

	var raw protocol.RawCodec
	if !info.IsDir() {
		raw.Encode([]byte(FormatEntry(info)))
		return raw.Drain(), nil
	}

	entries, err := os.ReadDir(realPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if hide != nil && hide(entry.Name()) {
			continue
		}
		ei, err := os.Stat(filepath.Join(realPath, entry.Name()))
		if err != nil {
			continue
		}
		raw.Encode([]byte(FormatEntry(ei)))
	}
	return raw.Drain(), nil
}
