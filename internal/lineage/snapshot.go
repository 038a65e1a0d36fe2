// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package lineage

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Snapshot container entries. A snapshot file is a ZIP archive; the graph
// payload lives in model.raw, tag-set data in tags.raw. The payload format
// beyond the count header is opaque to this server.
const (
	EntryModel = "model.raw"
	EntryTags  = "tags.raw"
)

// countHeaderLen is the fixed model.raw prefix this server understands:
// two big-endian uint32 fields, vertex count then edge count.
const countHeaderLen = 8

// GraphCounter obtains the vertex (spot) and edge (link) counts of a stored
// snapshot. The progress replay depends only on this narrow contract, so
// tests substitute fakes and the graph payload format stays out of scope.
type GraphCounter interface {
	Counts(path string) (spots, links int, err error)
}

// ContainerCounter is the default GraphCounter. It opens the snapshot ZIP
// container and reads exactly the count header of model.raw, never the
// graph body.
type ContainerCounter struct{}

// Counts implements GraphCounter.
func (ContainerCounter) Counts(path string) (int, int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != EntryModel {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 0, 0, fmt.Errorf("open %s in %s: %w", EntryModel, path, err)
		}
		defer rc.Close()

		var hdr [countHeaderLen]byte
		if _, err := io.ReadFull(rc, hdr[:]); err != nil {
			return 0, 0, fmt.Errorf("read count header of %s: %w", path, err)
		}
		spots := int(binary.BigEndian.Uint32(hdr[0:4]))
		links := int(binary.BigEndian.Uint32(hdr[4:8]))
		return spots, links, nil
	}
	return 0, 0, fmt.Errorf("snapshot %s has no %s entry", path, EntryModel)
}

// WriteSnapshot writes a snapshot container to path with the given raw graph
// payload. The payload must already begin with the count header; callers
// producing snapshots from scratch can use EncodeCountHeader. Used by the
// client helper and by tests; the server itself only streams opaque bytes.
func WriteSnapshot(path string, model, tags []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	zw := zip.NewWriter(f)

	w, err := zw.Create(EntryModel)
	if err == nil {
		_, err = w.Write(model)
	}
	if err == nil && tags != nil {
		var tw io.Writer
		tw, err = zw.Create(EntryTags)
		if err == nil {
			_, err = tw.Write(tags)
		}
	}
	if err == nil {
		err = zw.Close()
	} else {
		zw.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// EncodeCountHeader prepends the vertex/edge count header to a raw graph body.
func EncodeCountHeader(spots, links int, body []byte) []byte {
	out := make([]byte, countHeaderLen, countHeaderLen+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(spots))
	binary.BigEndian.PutUint32(out[4:8], uint32(links))
	return append(out, body...)
}
