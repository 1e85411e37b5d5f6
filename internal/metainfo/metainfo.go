// Package metainfo decodes a bencoded .torrent metafile into a Torrent
// value and computes its canonical info-hash, per spec.md's METAINFO
// DECODER & INFO-HASH component (§4.1).
//
// Grounded on the teacher's torrent.bencodeTorrent / bencodeInfo /
// toTorrentFile (same field set, same bencode tags, generalized to
// multi-file layouts the teacher never handled) and on
// uber-kraken/core/metainfo.go's InfoHash/MetaInfo split between "parsed
// value" and "identity hash".
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"

	bencodego "github.com/jackpal/bencode-go"

	"github.com/coreswarm/gorent/internal/bencode"
	"github.com/coreswarm/gorent/internal/bterror"
)


// File describes one file of a multi-file torrent.
type File struct {
	Path   []string
	Length int64
}

// Torrent is the immutable, parsed form of a .torrent metafile. It is
// constructed once at startup and retained for the lifetime of a download,
// per spec.md's DATA MODEL lifecycle note.
type Torrent struct {
	Name         string
	PieceLength  int64
	Pieces       []byte // concatenated 20-byte SHA-1 piece hashes
	Length       int64  // single-file total length; 0 if Files is set
	Files        []File // multi-file layout; nil if Length is set
	Announce     string
	AnnounceList [][]string
	InfoHash     InfoHash
}

type bencodeFile struct {
	Path   []string `bencode:"path"`
	Length int64    `bencode:"length"`
}

type bencodeInfo struct {
	Name        string        `bencode:"name"`
	PieceLength int64         `bencode:"piece length"`
	Pieces      string        `bencode:"pieces"`
	Length      int64         `bencode:"length"`
	Files       []bencodeFile `bencode:"files"`
}

type bencodeMetainfo struct {
	Announce     string      `bencode:"announce"`
	AnnounceList [][]string  `bencode:"announce-list"`
	Info         bencodeInfo `bencode:"info"`
}

// Decode parses a bencoded metafile read from r into a Torrent, computing
// its info-hash over the exact bytes the info sub-dictionary occupied in
// the input (see internal/bencode's doc comment for why that matters).
func Decode(r io.Reader) (*Torrent, error) {
	const op = "metainfo.Decode"

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, bterror.New(op, bterror.IoError, err)
	}

	var bm bencodeMetainfo
	if err := bencodego.Unmarshal(bytes.NewReader(raw), &bm); err != nil {
		return nil, bterror.New(op, bterror.MetainfoInvalid, fmt.Errorf("decode bencode: %w", err))
	}

	if len(bm.Info.Pieces)%20 != 0 {
		return nil, bterror.New(op, bterror.MetainfoInvalid,
			fmt.Errorf("pieces length %d is not a multiple of 20", len(bm.Info.Pieces)))
	}

	infoStart, infoEnd, err := bencode.ValueSpan(raw, "info")
	if err != nil {
		return nil, bterror.New(op, bterror.MetainfoInvalid, fmt.Errorf("locate info span: %w", err))
	}

	// A zero-length single-file entry (length: 0) is a valid, if unusual,
	// BEP-3 metafile and must not be confused with "neither key present";
	// bm.Info.Length == 0 can't tell those apart, so check key presence in
	// the raw dictionary instead.
	hasLength := bencode.HasKey(raw[infoStart:infoEnd], "length")
	hasFiles := bencode.HasKey(raw[infoStart:infoEnd], "files")
	if hasLength == hasFiles {
		return nil, bterror.New(op, bterror.MetainfoInvalid,
			fmt.Errorf("info must set exactly one of length or files"))
	}

	t := &Torrent{
		Name:         bm.Info.Name,
		PieceLength:  bm.Info.PieceLength,
		Pieces:       []byte(bm.Info.Pieces),
		Length:       bm.Info.Length,
		Announce:     bm.Announce,
		AnnounceList: bm.AnnounceList,
		InfoHash:     newInfoHashFromBytes(raw[infoStart:infoEnd]),
	}
	if hasFiles {
		t.Files = make([]File, len(bm.Info.Files))
		for i, f := range bm.Info.Files {
			t.Files[i] = File{Path: f.Path, Length: f.Length}
		}
	}
	return t, nil
}

// NumPieces returns the number of pieces described by t.Pieces.
func (t *Torrent) NumPieces() int {
	return len(t.Pieces) / 20
}

// PieceHash returns the expected 20-byte SHA-1 hash for piece index,
// panicking if index is out of range (callers only ever iterate
// 0..NumPieces()-1, per spec.md's driver design).
func (t *Torrent) PieceHash(index int) [20]byte {
	var h [20]byte
	copy(h[:], t.Pieces[index*20:index*20+20])
	return h
}

// CheckPiece reports whether SHA1(buf) equals the stored hash for piece
// index, per spec.md's invariant "check_piece(buf, index) returns true iff
// SHA1(buf) equals the 20-byte slice info.pieces[20*index..20*index+20]".
// It does not mutate t.
func (t *Torrent) CheckPiece(buf []byte, index int) bool {
	if index < 0 || index >= t.NumPieces() {
		return false
	}
	return sha1.Sum(buf) == t.PieceHash(index)
}

// GetTotalLength returns the sum of info.files[*].length for a multi-file
// torrent, or info.length for a single-file torrent (including the valid
// but unusual case of an explicit zero-length file). Decode distinguishes
// the two modes by which key was present, recorded here by whether Files
// is non-nil, since Length alone can't tell a real zero from "unset".
func (t *Torrent) GetTotalLength() (int64, error) {
	if t.Files != nil {
		var total int64
		for _, f := range t.Files {
			total += f.Length
		}
		return total, nil
	}
	return t.Length, nil
}

// PieceBounds returns the [begin, end) byte range piece index occupies in
// the overall content, clamped to the total length for the final piece.
func (t *Torrent) PieceBounds(index int) (begin, end int64, err error) {
	total, err := t.GetTotalLength()
	if err != nil {
		return 0, 0, err
	}
	begin = int64(index) * t.PieceLength
	end = begin + t.PieceLength
	if end > total {
		end = total
	}
	return begin, end, nil
}

// PieceLengthFor returns the length in bytes of piece index (PieceLength
// for every piece except possibly the last, per spec.md's invariant).
func (t *Torrent) PieceLengthFor(index int) (int64, error) {
	begin, end, err := t.PieceBounds(index)
	if err != nil {
		return 0, err
	}
	return end - begin, nil
}
