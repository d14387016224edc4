/*
 * keos - FAT32-style on-disk filesystem driver
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package fat32 implements the on-disk filesystem driver: boot
// signature, a single cluster-map FAT, a fixed-cluster root directory,
// CRUD, directory traversal, recursive path printing, and substring
// search over file contents (spec §4.4, grounded on
// original_source/src/fat32.c).
//
// Cluster size is fixed at 2048 bytes (4 blocks of 512 bytes), the value
// that makes a directory table of 64 fixed 32-byte entries land exactly
// on one cluster (spec §3 "Directory Table" and §6 "Directory entry (32
// bytes on disk)"); the narrower "cluster = 1 block" phrasing in spec §6
// is an introductory simplification and is not load-bearing here.
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/kaldera/keos/internal/blockdev"
)

const (
	ClusterBlockCount = 4
	ClusterSize       = blockdev.BlockSize * ClusterBlockCount

	DirEntrySize  = 32
	DirEntryCount = ClusterSize / DirEntrySize // 64

	FATClusterNumber  = 1
	RootClusterNumber = 2

	attrSubdirectory = 0x10
	uattrNotEmpty    = 0x01

	cluster0Value  uint32 = 0x0FFFFFF8
	cluster1Value  uint32 = 0x0FFFFFFF
	clusterEmpty   uint32 = 0x00000000
	clusterEOF     uint32 = 0x0FFFFFFF

	signatureText = "KEOS-FAT32-VOLUME"
)

// Return codes, stable across the syscall boundary (spec §4.4 table).
const (
	Ok = 0

	ReadNotAFile       = 1
	ReadBufferTooSmall = 2
	ReadNotFound        = 3

	ReadDirNotAFolder = 1
	ReadDirNotFound   = 2

	WriteExists    = 1
	WriteBadParent = 2
	WriteNoSpace   = -1

	DeleteNotFound      = 1
	DeleteFolderNotEmpty = 2

	Other = -1
)

// Request mirrors struct FAT32DriverRequest: the arguments common to
// every CRUD operation.
type Request struct {
	Name           [8]byte
	Ext            [3]byte
	ParentCluster  uint32
	Buf            []byte
	BufferSize     uint32
}

// DirEntry is one 32-byte directory entry, expanded into Go fields.
type DirEntry struct {
	Name         [8]byte
	Ext          [3]byte
	Attribute    uint8
	UserAttr     uint8
	ClusterHigh  uint16
	ClusterLow   uint16
	FileSize     uint32
}

func (e DirEntry) isEmpty() bool {
	return e.Name == [8]byte{} && e.Ext == [3]byte{}
}

func (e DirEntry) isSubdirectory() bool {
	return e.Attribute&attrSubdirectory != 0
}

func (e DirEntry) cluster() uint32 {
	return uint32(e.ClusterLow) | uint32(e.ClusterHigh)<<16
}

func (e *DirEntry) setCluster(c uint32) {
	e.ClusterLow = uint16(c & 0xFFFF)
	e.ClusterHigh = uint16(c >> 16)
}

func matches(e DirEntry, name [8]byte, ext [3]byte) bool {
	return e.Name == name && e.Ext == ext && e.UserAttr == uattrNotEmpty
}

// Table is one directory cluster's worth of entries: entry 0 is the
// self/parent header, entries 1..63 are children (spec §3).
type Table [DirEntryCount]DirEntry

func (t *Table) encode() []byte {
	buf := make([]byte, ClusterSize)
	for i, e := range t {
		off := i * DirEntrySize
		copy(buf[off:off+8], e.Name[:])
		copy(buf[off+8:off+11], e.Ext[:])
		buf[off+11] = e.Attribute
		buf[off+12] = e.UserAttr
		binary.LittleEndian.PutUint16(buf[off+13:], e.ClusterHigh)
		binary.LittleEndian.PutUint16(buf[off+15:], e.ClusterLow)
		binary.LittleEndian.PutUint32(buf[off+17:], e.FileSize)
	}
	return buf
}

func decodeTable(buf []byte) Table {
	var t Table
	for i := range t {
		off := i * DirEntrySize
		copy(t[i].Name[:], buf[off:off+8])
		copy(t[i].Ext[:], buf[off+8:off+11])
		t[i].Attribute = buf[off+11]
		t[i].UserAttr = buf[off+12]
		t[i].ClusterHigh = binary.LittleEndian.Uint16(buf[off+13:])
		t[i].ClusterLow = binary.LittleEndian.Uint16(buf[off+15:])
		t[i].FileSize = binary.LittleEndian.Uint32(buf[off+17:])
	}
	return t
}

// Driver is the filesystem's process-global state: the device it reads
// and writes clusters on plus the in-memory cluster map. Directory
// tables are decoded into per-call buffers rather than a shared scratch
// singleton (spec §9 "Global mutable driver buffer", option (a)).
type Driver struct {
	dev        blockdev.Device
	clusterMap []uint32
}

func clusterToLBA(cluster uint32) uint32 {
	return cluster * ClusterBlockCount
}

func readClusters(dev blockdev.Device, buf []byte, cluster uint32, count uint32) error {
	return dev.ReadBlocks(buf, clusterToLBA(cluster), count*ClusterBlockCount)
}

func writeClusters(dev blockdev.Device, buf []byte, cluster uint32, count uint32) error {
	return dev.WriteBlocks(buf, clusterToLBA(cluster), count*ClusterBlockCount)
}

func ceilDiv(a, b uint32) uint32 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// New builds a Driver over dev and loads its cluster map, formatting the
// device first if its boot sector does not carry the known signature.
func New(dev blockdev.Device) (*Driver, error) {
	d := &Driver{dev: dev}
	isFormatted, err := d.isFormatted()
	if err != nil {
		return nil, err
	}
	if !isFormatted {
		if err := d.format(); err != nil {
			return nil, err
		}
	}
	if err := d.loadClusterMap(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) mapSize() uint32 {
	total := d.dev.BlockCount() / ClusterBlockCount
	return total
}

func (d *Driver) isFormatted() (bool, error) {
	sig := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlocks(sig, 0, 1); err != nil {
		return false, err
	}
	want := signature()
	return bytes.Equal(sig, want), nil
}

func signature() []byte {
	sig := make([]byte, blockdev.BlockSize)
	copy(sig, []byte(signatureText))
	return sig
}

// format writes the boot signature, a fresh FAT with the two reserved
// entries plus an END_OF_FILE at the root cluster, and an empty root
// directory whose self-entry points to itself (spec §4.4 "Format").
func (d *Driver) format() error {
	if err := d.dev.WriteBlocks(signature(), 0, 1); err != nil {
		return err
	}
	n := d.mapSize()
	m := make([]uint32, n)
	m[0] = cluster0Value
	m[1] = cluster1Value
	m[RootClusterNumber] = clusterEOF
	for i := uint32(3); i < n; i++ {
		m[i] = clusterEmpty
	}
	d.clusterMap = m
	if err := d.writeClusterMap(); err != nil {
		return err
	}
	var root Table
	root[0] = DirEntry{Attribute: attrSubdirectory, UserAttr: uattrNotEmpty}
	root[0].setCluster(RootClusterNumber)
	if err := writeClusters(d.dev, root.encode(), RootClusterNumber, 1); err != nil {
		return err
	}
	return nil
}

func (d *Driver) clusterMapBytes() []byte {
	buf := make([]byte, ClusterSize)
	for i, v := range d.clusterMap {
		off := i * 4
		if off+4 > len(buf) {
			break
		}
		binary.LittleEndian.PutUint32(buf[off:], v)
	}
	return buf
}

func (d *Driver) writeClusterMap() error {
	return writeClusters(d.dev, d.clusterMapBytes(), FATClusterNumber, 1)
}

func (d *Driver) loadClusterMap() error {
	buf := make([]byte, ClusterSize)
	if err := readClusters(d.dev, buf, FATClusterNumber, 1); err != nil {
		return err
	}
	n := d.mapSize()
	m := make([]uint32, n)
	for i := range m {
		off := i * 4
		if off+4 > len(buf) {
			break
		}
		m[i] = binary.LittleEndian.Uint32(buf[off:])
	}
	d.clusterMap = m
	return nil
}

func (d *Driver) readTable(cluster uint32) (Table, error) {
	buf := make([]byte, ClusterSize)
	if err := readClusters(d.dev, buf, cluster, 1); err != nil {
		return Table{}, err
	}
	return decodeTable(buf), nil
}

func (d *Driver) writeTable(cluster uint32, t Table) error {
	return writeClusters(d.dev, t.encode(), cluster, 1)
}

// Read implements the `read` syscall: locate (name,ext) under
// parentCluster, fail if it names a directory, fail if buf is too small,
// else copy the file's cluster chain into buf verbatim.
func (d *Driver) Read(req Request) int {
	t, err := d.readTable(req.ParentCluster)
	if err != nil {
		return Other
	}
	if !t[0].isSubdirectory() {
		return ReadDirNotAFolder
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if !matches(e, req.Name, req.Ext) {
			continue
		}
		if e.isSubdirectory() {
			return ReadNotAFile
		}
		if req.BufferSize < e.FileSize {
			return ReadBufferTooSmall
		}
		cluster := e.cluster()
		offset := uint32(0)
		for {
			buf := make([]byte, ClusterSize)
			if err := readClusters(d.dev, buf, cluster, 1); err != nil {
				return Other
			}
			remaining := e.FileSize - offset
			n := remaining
			if n > ClusterSize {
				n = ClusterSize
			}
			copy(req.Buf[offset:offset+n], buf[:n])
			offset += n
			cluster = d.clusterMap[cluster]
			if cluster == clusterEOF {
				break
			}
		}
		return Ok
	}
	return ReadNotFound
}

// ReadDirectory implements `read_directory`: copy the child table named
// by (name,ext) into req's out-table.
func (d *Driver) ReadDirectory(req Request) (Table, int) {
	t, err := d.readTable(req.ParentCluster)
	if err != nil {
		return Table{}, Other
	}
	if !t[0].isSubdirectory() {
		return Table{}, ReadDirNotAFolder
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if !matches(e, req.Name, req.Ext) || !e.isSubdirectory() {
			continue
		}
		child, err := d.readTable(e.cluster())
		if err != nil {
			return Table{}, Other
		}
		return child, Ok
	}
	return Table{}, ReadDirNotFound
}

// Write implements `write`: size 0 creates a directory, otherwise a
// file. Rejects name collisions and insufficient space without
// persisting anything (spec §4.4 "Write algorithm").
func (d *Driver) Write(req Request) int {
	parent, err := d.readTable(req.ParentCluster)
	if err != nil {
		return Other
	}
	if !parent[0].isSubdirectory() {
		return WriteBadParent
	}
	for i := 1; i < DirEntryCount; i++ {
		if matches(parent[i], req.Name, req.Ext) {
			return WriteExists
		}
	}

	isDir := req.BufferSize == 0
	clusterCount := ceilDiv(req.BufferSize, ClusterSize)
	if isDir {
		clusterCount = 1
	}

	free := d.freeClusterIndices(clusterCount)
	if uint32(len(free)) < clusterCount {
		return WriteNoSpace
	}

	slot := -1
	for i := 1; i < DirEntryCount; i++ {
		if parent[i].isEmpty() {
			slot = i
			break
		}
	}
	if slot == -1 {
		return WriteNoSpace
	}

	entry := DirEntry{Name: req.Name, Ext: req.Ext, UserAttr: uattrNotEmpty, FileSize: req.BufferSize}
	if isDir {
		entry.Attribute = attrSubdirectory
		c := free[0]
		d.clusterMap[c] = clusterEOF
		entry.setCluster(c)
		var sub Table
		sub[0] = DirEntry{Attribute: attrSubdirectory, UserAttr: uattrNotEmpty}
		sub[0].setCluster(req.ParentCluster)
		if err := d.writeTable(c, sub); err != nil {
			return Other
		}
	} else {
		entry.setCluster(free[0])
		for i, c := range free {
			if i == len(free)-1 {
				d.clusterMap[c] = clusterEOF
			} else {
				d.clusterMap[c] = free[i+1]
			}
			start := uint32(i) * ClusterSize
			end := start + ClusterSize
			if end > req.BufferSize {
				end = req.BufferSize
			}
			payload := make([]byte, ClusterSize)
			copy(payload, req.Buf[start:end])
			if err := writeClusters(d.dev, payload, c, 1); err != nil {
				return Other
			}
		}
	}

	parent[slot] = entry
	if err := d.writeTable(req.ParentCluster, parent); err != nil {
		return Other
	}
	if err := d.writeClusterMap(); err != nil {
		return Other
	}
	return Ok
}

func (d *Driver) freeClusterIndices(count uint32) []uint32 {
	var free []uint32
	for i := uint32(3); i < uint32(len(d.clusterMap)) && uint32(len(free)) < count; i++ {
		if d.clusterMap[i] == clusterEmpty {
			free = append(free, i)
		}
	}
	return free
}

// Delete implements `delete`: refuses a non-empty subdirectory, else
// walks and frees the entry's cluster chain and clears the directory
// slot (spec §4.4 "Delete algorithm").
func (d *Driver) Delete(req Request) int {
	parent, err := d.readTable(req.ParentCluster)
	if err != nil {
		return Other
	}
	for i := 1; i < DirEntryCount; i++ {
		e := parent[i]
		if !matches(e, req.Name, req.Ext) {
			continue
		}
		if e.isSubdirectory() {
			sub, err := d.readTable(e.cluster())
			if err != nil {
				return Other
			}
			for j := 1; j < DirEntryCount; j++ {
				if sub[j].UserAttr == uattrNotEmpty {
					return DeleteFolderNotEmpty
				}
			}
		}
		cluster := e.cluster()
		for {
			next := d.clusterMap[cluster]
			d.clusterMap[cluster] = clusterEmpty
			if next == clusterEOF {
				break
			}
			cluster = next
		}
		parent[i] = DirEntry{}
		if err := d.writeTable(req.ParentCluster, parent); err != nil {
			return Other
		}
		if err := d.writeClusterMap(); err != nil {
			return Other
		}
		return Ok
	}
	return DeleteNotFound
}

// ResolveChild implements syscall #8: move_to_child_directory, returning
// the cluster number of the named child, or 0 if not found.
func (d *Driver) ResolveChild(req Request) uint32 {
	t, err := d.readTable(req.ParentCluster)
	if err != nil {
		return 0
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if e.isSubdirectory() && matches(e, req.Name, req.Ext) {
			return e.cluster()
		}
	}
	return 0
}

// ResolveParent implements syscall #9: move_to_parent_directory, reading
// entry 0's encoded back-pointer.
func (d *Driver) ResolveParent(cluster uint32) (uint32, error) {
	t, err := d.readTable(cluster)
	if err != nil {
		return 0, err
	}
	return t[0].cluster(), nil
}

// childName renders a DirEntry's name/ext as "name" or "name.ext",
// trimming NUL/space padding, for listings and path printing.
func childName(e DirEntry) string {
	name := strings.TrimRight(string(e.Name[:]), " \x00")
	ext := strings.TrimRight(string(e.Ext[:]), " \x00")
	if ext == "" {
		return name
	}
	if ext == "dir" {
		return name + "/"
	}
	return name + "." + ext
}

// ListDirectory implements syscall #10: a flat, non-recursive listing of
// cluster's occupied entries.
func (d *Driver) ListDirectory(cluster uint32) ([]string, error) {
	t, err := d.readTable(cluster)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := 1; i < DirEntryCount; i++ {
		if t[i].UserAttr == uattrNotEmpty {
			out = append(out, childName(t[i]))
		}
	}
	return out, nil
}

// PrintTree implements syscall #11: a bounded depth-first traversal,
// three spaces of indentation per level (spec §4.4 "Path printing").
func (d *Driver) PrintTree(cluster uint32) (string, error) {
	var b strings.Builder
	if err := d.printTree(&b, cluster, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (d *Driver) printTree(b *strings.Builder, cluster uint32, depth int) error {
	t, err := d.readTable(cluster)
	if err != nil {
		return err
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if e.UserAttr != uattrNotEmpty {
			continue
		}
		fmt.Fprintf(b, "%s%s\n", strings.Repeat("   ", depth), childName(e))
		if e.isSubdirectory() {
			if err := d.printTree(b, e.cluster(), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// PrintPathTo implements syscall #18: find a file or directory anywhere
// under cluster whose rendered name equals target, either as is or with
// a trailing "/" or ".txt" removed, and render the indented path of
// directories down to it, ending with the target's own name (spec §4.4,
// §8 scenario 5).
func (d *Driver) PrintPathTo(cluster uint32, target string) (string, bool, error) {
	var b strings.Builder
	found, err := d.printPathTo(&b, cluster, target, 0)
	if err != nil {
		return "", false, err
	}
	return b.String(), found, nil
}

func (d *Driver) printPathTo(b *strings.Builder, cluster uint32, target string, depth int) (bool, error) {
	t, err := d.readTable(cluster)
	if err != nil {
		return false, err
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if e.UserAttr != uattrNotEmpty {
			continue
		}
		name := childName(e)
		if strings.TrimSuffix(strings.TrimSuffix(name, "/"), ".txt") == target || name == target {
			fmt.Fprintf(b, "%s%s\n", strings.Repeat("   ", depth), name)
			return true, nil
		}
		if e.isSubdirectory() {
			var sub strings.Builder
			found, err := d.printPathTo(&sub, e.cluster(), target, depth+1)
			if err != nil {
				return false, err
			}
			if found {
				fmt.Fprintf(b, "%s%s\n", strings.Repeat("   ", depth), name)
				b.WriteString(sub.String())
				return true, nil
			}
		}
	}
	return false, nil
}

// SearchMode selects the substring matcher SearchText uses (spec §4.4
// "Substring search").
type SearchMode int

const (
	SearchKMP SearchMode = iota
	SearchBM
)

// SearchText walks cluster depth-first, reads every file with a "txt"
// extension, and reports the paths of files containing pattern.
func (d *Driver) SearchText(cluster uint32, pattern string, mode SearchMode) ([]string, error) {
	var results []string
	if err := d.searchText(cluster, pattern, mode, "", &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Driver) searchText(cluster uint32, pattern string, mode SearchMode, prefix string, out *[]string) error {
	t, err := d.readTable(cluster)
	if err != nil {
		return err
	}
	for i := 1; i < DirEntryCount; i++ {
		e := t[i]
		if e.UserAttr != uattrNotEmpty {
			continue
		}
		name := childName(e)
		path := prefix + "/" + strings.TrimSuffix(name, "/")
		if e.isSubdirectory() {
			if err := d.searchText(e.cluster(), pattern, mode, path, out); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(string(e.Ext[:]), "txt") {
			continue
		}
		buf := make([]byte, e.FileSize)
		rc := d.Read(Request{Name: e.Name, Ext: e.Ext, ParentCluster: cluster, Buf: buf, BufferSize: e.FileSize})
		if rc != Ok {
			continue
		}
		var found bool
		switch mode {
		case SearchBM:
			found = SearchBoyerMoore(string(buf), pattern)
		default:
			found = SearchKnuthMorrisPratt(string(buf), pattern)
		}
		if found {
			*out = append(*out, path)
		}
	}
	return nil
}
