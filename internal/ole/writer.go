package ole

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// sectorSize is fixed at 512 (major version 3); this writer never produces
// a mini stream, trading the space efficiency of storing small streams in
// the mini-FAT for a much simpler, still spec-valid, compound file.
const sectorSize = 512

const maxDIFATInHeader = 109

// Write assembles a fresh major-version-3 compound file whose root storage
// carries classID and whose only children are streams, built as a valid
// (if always-balanced, not necessarily red-black-colored) binary search
// tree ordered by the CFBF name comparator (length, then case-insensitive
// content) as MS-CFB §2.6.4 requires of compliant readers.
func Write(classID [16]byte, streams []Stream) ([]byte, error) {
	type entry struct {
		name            string
		isStream        bool
		startSector     uint32
		size            uint64
		left, right, child uint32
	}

	order := append([]Stream{}, streams...)
	sort.Slice(order, func(i, j int) bool { return cfbCompare(order[i].Name, order[j].Name) < 0 })

	entries := make([]entry, 1+len(order)) // index 0 = root
	for i, s := range order {
		entries[i+1] = entry{name: s.name(), isStream: true, size: uint64(len(s.Data))}
	}

	// Build a balanced BST over indices [1..n] sorted by name, returning the
	// id of the subtree root; FREE (0xFFFFFFFF) for an empty range.
	var build func(ids []uint32) uint32
	build = func(ids []uint32) uint32 {
		if len(ids) == 0 {
			return freeSect
		}
		mid := len(ids) / 2
		id := ids[mid]
		entries[id].left = build(ids[:mid])
		entries[id].right = build(ids[mid+1:])
		return id
	}
	ids := make([]uint32, len(order))
	for i := range order {
		ids[i] = uint32(i + 1)
	}
	rootChild := build(ids)
	entries[0] = entry{name: "Root Entry", isStream: false, child: rootChild, left: freeSect, right: freeSect}

	numEntries := len(entries)
	dirEntriesPerSector := sectorSize / dirEntryLen
	numDirSectors := ceilDiv(numEntries, dirEntriesPerSector)

	dataSectorCounts := make([]int, len(order))
	totalDataSectors := 0
	for i, s := range order {
		n := ceilDiv(len(s.Data), sectorSize)
		dataSectorCounts[i] = n
		totalDataSectors += n
	}

	nonFAT := numDirSectors + totalDataSectors
	numFATSectors := ceilDiv(nonFAT*4, sectorSize)
	for {
		total := nonFAT + numFATSectors
		need := ceilDiv(total*4, sectorSize)
		if need == numFATSectors {
			break
		}
		numFATSectors = need
	}
	if numFATSectors > maxDIFATInHeader {
		return nil, fmt.Errorf("ole: write: %d FAT sectors exceeds the %d supported without DIFAT sectors", numFATSectors, maxDIFATInHeader)
	}

	firstFATSector := 0
	firstDirSector := firstFATSector + numFATSectors
	firstDataSector := firstDirSector + numDirSectors
	totalSectors := firstDataSector + totalDataSectors

	fat := make([]uint32, totalSectors)
	for i := 0; i < numFATSectors; i++ {
		fat[firstFATSector+i] = fatSect
	}
	for i := 0; i < numDirSectors; i++ {
		sec := firstDirSector + i
		if i == numDirSectors-1 {
			fat[sec] = endOfChain
		} else {
			fat[sec] = uint32(sec + 1)
		}
	}

	dataStart := make([]uint32, len(order))
	cursor := firstDataSector
	for i, n := range dataSectorCounts {
		if n == 0 {
			entries[i+1].startSector = endOfChain
			continue
		}
		dataStart[i] = uint32(cursor)
		entries[i+1].startSector = uint32(cursor)
		for j := 0; j < n; j++ {
			sec := cursor + j
			if j == n-1 {
				fat[sec] = endOfChain
			} else {
				fat[sec] = uint32(sec + 1)
			}
		}
		cursor += n
	}

	buf := make([]byte, headerLen+totalSectors*sectorSize)
	copy(buf[0:8], Signature[:])
	binary.LittleEndian.PutUint16(buf[24:26], 0x003E) // minor version
	binary.LittleEndian.PutUint16(buf[26:28], 3)      // major version
	binary.LittleEndian.PutUint16(buf[28:30], 0xFFFE) // byte order
	binary.LittleEndian.PutUint16(buf[30:32], 9)      // sector shift
	binary.LittleEndian.PutUint16(buf[32:34], 6)      // mini sector shift
	binary.LittleEndian.PutUint32(buf[44:48], uint32(numFATSectors))
	binary.LittleEndian.PutUint32(buf[48:52], uint32(firstDirSector))
	binary.LittleEndian.PutUint32(buf[56:60], miniCutoff)
	binary.LittleEndian.PutUint32(buf[60:64], endOfChain) // no mini FAT
	binary.LittleEndian.PutUint32(buf[64:68], 0)
	binary.LittleEndian.PutUint32(buf[68:72], endOfChain) // no DIFAT sectors
	binary.LittleEndian.PutUint32(buf[72:76], 0)
	for i := 0; i < maxDIFATInHeader; i++ {
		off := 76 + i*4
		if i < numFATSectors {
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(firstFATSector+i))
		} else {
			binary.LittleEndian.PutUint32(buf[off:off+4], freeSect)
		}
	}

	sectorAt := func(i int) []byte {
		start := headerLen + i*sectorSize
		return buf[start : start+sectorSize]
	}

	for i := 0; i < numFATSectors; i++ {
		s := sectorAt(firstFATSector + i)
		for j := 0; j < sectorSize/4; j++ {
			idx := i*(sectorSize/4) + j
			v := uint32(freeSect)
			if idx < len(fat) {
				v = fat[idx]
			}
			binary.LittleEndian.PutUint32(s[j*4:j*4+4], v)
		}
	}

	dirBytes := make([]byte, numDirSectors*sectorSize)
	for i, e := range entries {
		off := i * dirEntryLen
		nameUTF16 := stringToUTF16LE(e.name)
		nameUTF16 = append(nameUTF16, 0, 0)
		if len(nameUTF16) > 64 {
			nameUTF16 = nameUTF16[:64]
		}
		copy(dirBytes[off:off+64], nameUTF16)
		binary.LittleEndian.PutUint16(dirBytes[off+64:off+66], uint16(len(nameUTF16)))
		if i == 0 {
			dirBytes[off+66] = objTypeRoot
			copy(dirBytes[off+80:off+96], classID[:])
		} else {
			dirBytes[off+66] = objTypeStream
		}
		dirBytes[off+67] = 1 // color: black, so no reader ever needs to rebalance
		child := e.child
		if i > 0 {
			child = freeSect
		}
		binary.LittleEndian.PutUint32(dirBytes[off+68:off+72], e.left)
		binary.LittleEndian.PutUint32(dirBytes[off+72:off+76], e.right)
		binary.LittleEndian.PutUint32(dirBytes[off+76:off+80], child)
		binary.LittleEndian.PutUint32(dirBytes[off+116:off+120], e.startSector)
		binary.LittleEndian.PutUint64(dirBytes[off+120:off+128], e.size)
	}
	copy(buf[headerLen+firstDirSector*sectorSize:], dirBytes)

	for i, s := range order {
		if len(s.Data) == 0 {
			continue
		}
		dst := buf[headerLen+int(dataStart[i])*sectorSize:]
		copy(dst, s.Data)
	}

	return buf, nil
}

func (s Stream) name() string { return s.Name }

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// cfbCompare implements the MS-CFB directory-entry name comparison: shorter
// names sort first; names of equal length compare case-insensitively.
func cfbCompare(a, b string) int {
	ua, ub := stringToUTF16LE(a), stringToUTF16LE(b)
	if len(ua) != len(ub) {
		if len(ua) < len(ub) {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToUpper(a), strings.ToUpper(b))
}
