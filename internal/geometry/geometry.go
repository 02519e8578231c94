// Package geometry holds named FAT12 volume presets — the floppy and small
// hard-disk shapes the format subcommand picks BPB defaults from — loaded
// from an embedded CSV via gocarina/gocsv, following the teacher's
// disks.DiskGeometry pattern.
package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/mkfs-go/fscore"
)

// Geometry is one named FAT12 volume shape.
type Geometry struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	TotalBytes        int64  `csv:"total_bytes"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	RootEntryCount    uint16 `csv:"root_entry_count"`
	MediaDescriptor   uint8  `csv:"media_descriptor"`
}

// FSStat converts a Geometry preset into the fscore.FSStat a Create hook
// expects.
func (g Geometry) FSStat() fscore.FSStat {
	return fscore.FSStat{
		TotalBytes:        g.TotalBytes,
		BytesPerSector:    g.BytesPerSector,
		SectorsPerCluster: g.SectorsPerCluster,
		RootEntryCount:    g.RootEntryCount,
		MediaDescriptor:   g.MediaDescriptor,
	}
}

//go:embed geometries.csv
var rawCSV string

var presets map[string]Geometry

func init() {
	presets = make(map[string]Geometry)
	reader := strings.NewReader(rawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate geometry preset %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// ByName returns the named preset, or ErrNotFound if it's undefined.
func ByName(slug string) (Geometry, error) {
	g, ok := presets[slug]
	if !ok {
		return Geometry{}, fscore.ErrNotFound.WithMessage(
			fmt.Sprintf("no predefined geometry named %q", slug))
	}
	return g, nil
}

// Names lists every known preset slug.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
