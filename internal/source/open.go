// Package source acquires list archives and opens them for conversion.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
)

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// List is an opened list file. Reads return the decompressed JSON document.
type List struct {
	r       io.Reader
	file    *os.File
	counter *core.CountingReader
	Path    string
	Size    int64 // bytes on disk
	XZ      bool
}

// Open opens the list at path. Archives are recognized by the xz magic
// bytes, anything else is read as plain JSON.
func Open(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat list: %w", err)
	}

	l := &List{file: f, Path: path, Size: info.Size()}
	if err := l.init(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *List) init() error {
	l.counter = core.NewCountingReader(l.file, l.Size)
	br := bufio.NewReaderSize(l.counter, 64*1024)

	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read list header: %w", err)
	}
	if !bytes.Equal(head, xzMagic) {
		l.r = core.NewBOMSkippingReader(br)
		return nil
	}

	zr, err := xz.NewReader(br)
	if err != nil {
		return fmt.Errorf("xz: %w", err)
	}
	l.XZ = true
	l.r = core.NewBOMSkippingReader(zr)
	return nil
}

// Read implements io.Reader.
func (l *List) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && l.XZ {
		err = fmt.Errorf("xz: %w", err)
	}
	return n, err
}

// Progress reports how much of the file on disk has been consumed (0-100).
func (l *List) Progress() int {
	return l.counter.Progress()
}

// Close closes the underlying file.
func (l *List) Close() error {
	return l.file.Close()
}

// ReadMetadata reads records from r until the list header and returns it.
// Only the head of the document is consumed.
func ReadMetadata(r io.Reader, schema *core.Schema, loc *time.Location) (core.ListMetadata, error) {
	stream := core.NewJSONStream(r)
	asm := core.NewAssembler()
	mapper := core.NewMapper(schema, loc)

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return core.ListMetadata{}, errors.New("list has no header record")
		}
		if err != nil {
			return core.ListMetadata{}, fmt.Errorf("read list header: %w", err)
		}
		rec, ok, err := asm.Feed(ev)
		if err != nil {
			return core.ListMetadata{}, fmt.Errorf("read list header: %w", err)
		}
		if !ok {
			continue
		}
		if m := mapper.Map(rec); m.Kind == core.MappedMetadata {
			return m.Metadata, nil
		}
		return core.ListMetadata{}, errors.New("list does not start with a header record")
	}
}

// ReadFileMetadata opens path and reads its header.
func ReadFileMetadata(path string, schema *core.Schema, loc *time.Location) (core.ListMetadata, error) {
	l, err := Open(path)
	if err != nil {
		return core.ListMetadata{}, err
	}
	defer l.Close()
	return ReadMetadata(l, schema, loc)
}
