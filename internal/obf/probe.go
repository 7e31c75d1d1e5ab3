// Package obf reads metadata of binary map files. A map file starts with a
// protobuf-encoded header carrying the format version and the creation
// timestamp; the probe reads only that header, never the section payloads.
package obf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/spf13/afero"
)

var (
	ErrHeaderTooShort  = errors.New("map file header truncated")
	ErrHeaderMalformed = errors.New("map file header malformed")
	ErrNoVersion       = errors.New("map file header carries no version")
)

const (
	fieldVersion          = 1
	fieldCreationTime     = 18
	wireTypeVarint        = 0
	maxHeaderFields       = 8
	supportedVersionFloor = 1
)

// Info is the metadata obtained by probing a map file.
type Info struct {
	Version           int32
	CreationTimestamp uint64 // ms since Unix epoch
}

// Probe inspects an opened map file and yields its metadata.
type Probe interface {
	Probe(r io.Reader) (*Info, error)
}

// ProbeFile opens path read-only on fs and runs the probe against it.
func ProbeFile(fs afero.Fs, p Probe, path string) (*Info, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Probe(f)
}

// HeaderProbe is the default Probe. It walks the leading varint-coded fields
// of the file and extracts version and creation timestamp, rejecting files
// that do not look like map files at all.
type HeaderProbe struct{}

func (HeaderProbe) Probe(r io.Reader) (*Info, error) {
	br := bufio.NewReader(r)
	info := &Info{Version: -1}
	for i := 0; i < maxHeaderFields; i++ {
		key, err := readVarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHeaderTooShort, err)
		}
		field := key >> 3
		wire := key & 0x7
		if wire != wireTypeVarint {
			// first non-varint field ends the fixed header
			break
		}
		value, err := readVarint(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHeaderTooShort, err)
		}
		switch field {
		case fieldVersion:
			if value < supportedVersionFloor {
				return nil, fmt.Errorf("%w: version %d", ErrHeaderMalformed, value)
			}
			info.Version = int32(value)
		case fieldCreationTime:
			info.CreationTimestamp = value
		}
		if info.Version >= 0 && info.CreationTimestamp != 0 {
			break
		}
	}
	if info.Version < 0 {
		return nil, ErrNoVersion
	}
	return info, nil
}

func readVarint(br *bufio.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && shift > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, ErrHeaderMalformed
		}
	}
}

// MapFile ties probe metadata to an installed map file and carries the
// advisory removal lock. Readers holding the file open are expected to watch
// the flag and drop their handles once it is set; setting it does not block
// reads already in flight.
type MapFile struct {
	Path string
	Size uint64
	Info *Info

	lockedForRemoval atomic.Bool
}

func NewMapFile(path string, size uint64, info *Info) *MapFile {
	return &MapFile{Path: path, Size: size, Info: info}
}

// LockForRemoval flags the file as about to be deleted.
func (f *MapFile) LockForRemoval() {
	f.lockedForRemoval.Store(true)
}

func (f *MapFile) IsLockedForRemoval() bool {
	return f.lockedForRemoval.Load()
}
