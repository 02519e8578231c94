package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/mkfs-go/fscore"
)

// Directory-entry attribute bits (spec §3).
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

const (
	direntSize   = 32
	direntFree   = 0xE5
	direntEnd    = 0x00
	lfnCharsOrd1 = 5
	lfnCharsOrd2 = 6
	lfnCharsOrd3 = 2
	lfnCharsSlot = lfnCharsOrd1 + lfnCharsOrd2 + lfnCharsOrd3
	lfnLastFlag  = 0x40
)

// ShortEntry is the 32-byte 8.3 directory entry (spec §3, "Directory Entry
// Field" table).
type ShortEntry struct {
	Name            [8]byte
	Ext             [3]byte
	Attr            uint8
	Reserved        uint8
	CreateTimeTenth uint8
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	ClusterHigh     uint16
	WriteTime       uint16
	WriteDate       uint16
	ClusterLow      uint16
	FileSize        uint32
}

// lfnEntry is a single VFAT long-filename chain link (attribute 0x0F).
type lfnEntry struct {
	Order           uint8
	Name1           [lfnCharsOrd1]uint16
	Attr            uint8
	Type            uint8
	Checksum        uint8
	Name2           [lfnCharsOrd2]uint16
	FirstClusterLow uint16
	Name3           [lfnCharsOrd3]uint16
}

func decodeShortEntry(buf []byte) ShortEntry {
	var e ShortEntry
	copy(e.Name[:], buf[0:8])
	copy(e.Ext[:], buf[8:11])
	e.Attr = buf[11]
	e.Reserved = buf[12]
	e.CreateTimeTenth = buf[13]
	e.CreateTime = binary.LittleEndian.Uint16(buf[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(buf[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(buf[18:20])
	// Bug fix (spec §9): the high half of the starting cluster must be
	// masked to its full 16 bits, not truncated to 8.
	e.ClusterHigh = binary.LittleEndian.Uint16(buf[20:22]) & 0xFFFF
	e.WriteTime = binary.LittleEndian.Uint16(buf[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(buf[24:26])
	e.ClusterLow = binary.LittleEndian.Uint16(buf[26:28])
	e.FileSize = binary.LittleEndian.Uint32(buf[28:32])
	return e
}

func encodeShortEntry(buf []byte, e ShortEntry) {
	copy(buf[0:8], e.Name[:])
	copy(buf[8:11], e.Ext[:])
	buf[11] = e.Attr
	buf[12] = e.Reserved
	buf[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(buf[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(buf[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(buf[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(buf[20:22], e.ClusterHigh)
	binary.LittleEndian.PutUint16(buf[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(buf[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(buf[26:28], e.ClusterLow)
	binary.LittleEndian.PutUint32(buf[28:32], e.FileSize)
}

func (e ShortEntry) FirstCluster() ClusterID {
	return ClusterID(uint32(e.ClusterHigh)<<16 | uint32(e.ClusterLow))
}

func setFirstCluster(e *ShortEntry, c ClusterID) {
	e.ClusterHigh = uint16(uint32(c) >> 16)
	// Bug fix (spec §9): mask to the full 16 bits, not 8, or clusters at or
	// above 256 silently wrap.
	e.ClusterLow = uint16(uint32(c) & 0xFFFF)
}

// decodeDate/decodeTime undo the FAT packed date/time encoding (spec §3,
// "Packed Date" and "Packed Time"). Two historical bugs are fixed here:
// seconds are stored in 2-second units and must be doubled, and the year
// field is an offset from 1980, not 1900.
func decodeDate(d uint16) (year int, month time.Month, day int) {
	year = 1980 + int((d>>9)&0x7F)
	month = time.Month((d >> 5) & 0x0F)
	day = int(d & 0x1F)
	return
}

func decodeTime(t uint16) (hour, min, sec int) {
	hour = int((t >> 11) & 0x1F)
	min = int((t >> 5) & 0x3F)
	sec = int(t&0x1F) * 2
	return
}

func encodeDate(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	return uint16(year&0x7F)<<9 | uint16(t.Month()&0x0F)<<5 | uint16(t.Day()&0x1F)
}

func encodeTime(t time.Time) uint16 {
	return uint16(t.Hour()&0x1F)<<11 | uint16(t.Minute()&0x3F)<<5 | uint16((t.Second()/2)&0x1F)
}

func decodeDateTime(date, clock uint16) time.Time {
	y, mo, d := decodeDate(date)
	h, mi, s := decodeTime(clock)
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC)
}

// shortNameChecksum implements the standard VFAT checksum over the 11-byte
// packed short name, used to cross-validate LFN entries against their
// anchoring short entry.
func shortNameChecksum(name [8]byte, ext [3]byte) uint8 {
	var sum uint8
	for _, b := range append(name[:], ext[:]...) {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

// packShortName splits an 8.3 string into its padded name/ext fields.
func packShortName(name, ext string) (n [8]byte, e [3]byte) {
	for i := range n {
		n[i] = ' '
	}
	for i := range e {
		e[i] = ' '
	}
	copy(n[:], strings.ToUpper(name))
	copy(e[:], strings.ToUpper(ext))
	return
}

// deriveShortName builds an 8.3 candidate from an arbitrary long name,
// truncating the basis to 8 characters and the extension (text after the
// last dot) to 3, per spec §4.6. collisionSuffix, when > 0, requests the
// "~N" disambiguation form (a genuine addition over the base algorithm,
// scoped to collisions within a single directory listing — see DESIGN.md).
func deriveShortName(longName string, collisionSuffix int) (string, string) {
	base := longName
	ext := ""
	if idx := strings.LastIndex(longName, "."); idx >= 0 {
		base = longName[:idx]
		ext = longName[idx+1:]
	}
	base = sanitizeShortNameChars(base)
	ext = sanitizeShortNameChars(ext)
	if len(ext) > 3 {
		ext = ext[:3]
	}

	if collisionSuffix > 0 {
		suffix := fmt.Sprintf("~%d", collisionSuffix)
		maxBase := 8 - len(suffix)
		if maxBase < 1 {
			maxBase = 1
		}
		if len(base) > maxBase {
			base = base[:maxBase]
		}
		base += suffix
	} else if len(base) > 8 {
		base = base[:8]
	}
	return base, ext
}

func sanitizeShortNameChars(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r == ' ', r == '.':
			continue
		case r < 0x20 || r > 0x7E:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// needsLongName reports whether name can't be represented faithfully by an
// 8.3 short entry alone (mixed case, length, or illegal short-name
// characters), in which case an LFN chain is required.
func needsLongName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	base, ext := deriveShortName(name, 0)
	candidate := base
	if ext != "" {
		candidate += "." + ext
	}
	return candidate != name
}

// encodeLFNChain produces the sequence of 32-byte LFN entries (in on-disk,
// highest-order-first order) plus the anchoring short entry for name.
func encodeLFNChain(name string, short ShortEntry) [][]byte {
	units := utf16.Encode([]rune(name))
	chunks := chunkify(units, lfnCharsSlot)
	checksum := shortNameChecksum(short.Name, short.Ext)

	out := make([][]byte, 0, len(chunks)+1)
	for i := len(chunks) - 1; i >= 0; i-- {
		order := uint8(i + 1)
		if i == len(chunks)-1 {
			order |= lfnLastFlag
		}
		buf := make([]byte, direntSize)
		encodeLFNEntry(buf, order, chunks[i], checksum)
		out = append(out, buf)
	}
	shortBuf := make([]byte, direntSize)
	encodeShortEntry(shortBuf, short)
	out = append(out, shortBuf)
	return out
}

func chunkify(units []uint16, size int) [][]uint16 {
	var chunks [][]uint16
	for i := 0; i < len(units)+1; i += size {
		end := i + size
		var chunk []uint16
		if i < len(units) {
			if end > len(units) {
				end = len(units)
			}
			chunk = append(chunk, units[i:end]...)
		}
		if len(chunk) < size {
			// Terminate with 0x0000, pad remainder with 0xFFFF.
			if len(chunk) < size {
				chunk = append(chunk, 0x0000)
			}
			for len(chunk) < size {
				chunk = append(chunk, 0xFFFF)
			}
		}
		chunks = append(chunks, chunk)
		if end >= len(units) {
			break
		}
	}
	if len(chunks) == 0 {
		chunk := make([]uint16, size)
		chunk[0] = 0x0000
		for i := 1; i < size; i++ {
			chunk[i] = 0xFFFF
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func encodeLFNEntry(buf []byte, order uint8, chunk []uint16, checksum uint8) {
	buf[0] = order
	for i := 0; i < lfnCharsOrd1; i++ {
		binary.LittleEndian.PutUint16(buf[1+i*2:], chunk[i])
	}
	buf[11] = AttrLongName
	buf[12] = 0
	buf[13] = checksum
	for i := 0; i < lfnCharsOrd2; i++ {
		binary.LittleEndian.PutUint16(buf[14+i*2:], chunk[lfnCharsOrd1+i])
	}
	binary.LittleEndian.PutUint16(buf[26:28], 0)
	for i := 0; i < lfnCharsOrd3; i++ {
		binary.LittleEndian.PutUint16(buf[28+i*2:], chunk[lfnCharsOrd1+lfnCharsOrd2+i])
	}
}

func decodeLFNEntry(buf []byte) (order uint8, chunk [lfnCharsSlot]uint16, checksum uint8) {
	order = buf[0]
	checksum = buf[13]
	for i := 0; i < lfnCharsOrd1; i++ {
		chunk[i] = binary.LittleEndian.Uint16(buf[1+i*2:])
	}
	for i := 0; i < lfnCharsOrd2; i++ {
		chunk[lfnCharsOrd1+i] = binary.LittleEndian.Uint16(buf[14+i*2:])
	}
	for i := 0; i < lfnCharsOrd3; i++ {
		chunk[lfnCharsOrd1+lfnCharsOrd2+i] = binary.LittleEndian.Uint16(buf[28+i*2:])
	}
	return
}

// decodeLFNName reassembles the UTF-16 name from chunks already sorted by
// sequence number ascending (the reverse of their on-disk order); stops at
// the 0x0000 terminator.
func decodeLFNName(chunks [][lfnCharsSlot]uint16) string {
	var units []uint16
	for _, c := range chunks {
		for _, u := range c {
			if u == 0x0000 {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}

func isLFNEntry(raw []byte) bool {
	return raw[11] == AttrLongName
}

func errCorruptDirent(msg string) error {
	return fscore.ErrFileSystemCorrupted.WithMessage(msg)
}

// DirectoryEntry is one logical entry recovered from a directory's raw
// bytes: its resolved name (long if an LFN chain anchored it, else the
// packed 8.3 form) plus the short entry carrying its metadata, and the
// [start, end) slot range it occupies so callers can rewrite or free it.
type DirectoryEntry struct {
	Name      string
	Short     ShortEntry
	SlotStart int
	SlotCount int
}

// ParseDirectory walks a directory's raw bytes (one or more clusters'
// worth, or the fixed root region) and reassembles every live entry,
// resolving VFAT long-name chains and skipping free/deleted slots.
func ParseDirectory(buf []byte) ([]DirectoryEntry, error) {
	var entries []DirectoryEntry
	var pending [][lfnCharsSlot]uint16
	pendingStart := -1

	n := len(buf) / direntSize
	for i := 0; i < n; i++ {
		slot := buf[i*direntSize : (i+1)*direntSize]
		if slot[0] == direntEnd {
			break
		}
		if slot[0] == direntFree {
			pending = nil
			pendingStart = -1
			continue
		}
		if isLFNEntry(slot) {
			if pendingStart == -1 {
				pendingStart = i
			}
			_, chunk, _ := decodeLFNEntry(slot)
			pending = append(pending, chunk)
			continue
		}

		short := decodeShortEntry(slot)
		if short.Attr&AttrVolumeID != 0 {
			pending = nil
			pendingStart = -1
			continue
		}

		name := shortEntryName(short)
		start := i
		count := 1
		if len(pending) > 0 {
			ordered := make([][lfnCharsSlot]uint16, len(pending))
			for j, c := range pending {
				ordered[len(pending)-1-j] = c
			}
			name = decodeLFNName(ordered)
			start = pendingStart
			count = i - pendingStart + 1
		}
		entries = append(entries, DirectoryEntry{
			Name:      name,
			Short:     short,
			SlotStart: start,
			SlotCount: count,
		})
		pending = nil
		pendingStart = -1
	}
	if pendingStart != -1 {
		return entries, errCorruptDirent("long-name chain has no anchoring short entry")
	}
	return entries, nil
}

// shortEntryName reconstructs the display form "NAME.EXT" (or "NAME") of a
// short entry's packed fields, for use when no LFN chain anchors it.
func shortEntryName(e ShortEntry) string {
	name := strings.TrimRight(string(e.Name[:]), " ")
	ext := strings.TrimRight(string(e.Ext[:]), " ")
	if name == "" {
		return name
	}
	if name[0] == 0x05 {
		name = string(rune(0xE5)) + name[1:]
	}
	if ext == "" {
		return name
	}
	return name + "." + ext
}
