// Package filetransfer implements the chunked file transfer protocol (spec
// §3 "File-transfer state", §4.6, §4.7): sender-side chunking of a local
// file into FILE_INIT/FILE_CHUNK*/FILE_END frames, and receiver-side
// reassembly keyed by (source MAC, message id).
//
// The three-phase shape (init/chunk*/end) mirrors stream/stream.go's
// StreamStart/StreamData/StreamEnd FrameType triad, though GhostFrame has
// no persistent stream/session concept, so reassembly here is a one-shot
// table keyed per spec §3 on (SrcMAC, MsgID) rather than a long-lived
// stream object.
package filetransfer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mattcspeights/ghostframes/internal/codec"
)

// ChunkSize is the fixed chunk size in bytes (spec §3 Constants).
const ChunkSize = 1000

// FrameSender is the narrow capability filetransfer needs from the
// transceiver/router to emit frames — grounded on the teacher's
// SphinxComposerSender seam (client2/arq.go), kept narrow so tests can
// supply a mock (client2/arq_test.go's mockComposerSender pattern).
type FrameSender interface {
	SendFrame(dst net.HardwareAddr, f codec.Frame) error
}

// Progress reports sender-side transfer state, supplementing the Python
// original's incremental prints ("Sending file ... (N bytes) to ...",
// "File %s sent in %d chunks") as a structured callback instead of log
// lines (spec §4.6 SUPPLEMENT).
type Progress struct {
	Filename     string
	TotalBytes   int
	ChunksSent   int
	ChunksTotal  int
	Done         bool
}

// ProgressFunc receives Progress updates. May be nil.
type ProgressFunc func(Progress)

// Send streams path to dst as FILE_INIT, a run of FILE_CHUNK frames, then
// FILE_END, all under msgID (spec §4.6 steps 2-4). It returns the sequence
// number of the FILE_END frame, which the caller uses to rebuild that frame
// for the reliability engine to retransmit.
func Send(sender FrameSender, dst net.HardwareAddr, msgID uint32, path string, progress ProgressFunc) (endSeq uint32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("filetransfer: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("filetransfer: stat %s: %w", path, err)
	}

	filename := filepath.Base(path)
	totalSize := info.Size()
	chunksTotal := int((totalSize + ChunkSize - 1) / ChunkSize)

	initData := fmt.Sprintf("%s|%d", filename, totalSize)
	if err := sender.SendFrame(dst, codec.Frame{Type: codec.MsgTypeFileInit, MsgID: msgID, Seq: 1, Data: initData}); err != nil {
		return 0, fmt.Errorf("filetransfer: send FILE_INIT: %w", err)
	}

	reportProgress(progress, Progress{Filename: filename, TotalBytes: int(totalSize), ChunksTotal: chunksTotal})

	seq := uint32(2)
	buf := make([]byte, ChunkSize)
	chunksSent := 0
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := sender.SendFrame(dst, codec.Frame{
				Type:  codec.MsgTypeFileChunk,
				MsgID: msgID,
				Seq:   seq,
				Data:  encodeChunk(chunk),
			}); err != nil {
				return 0, fmt.Errorf("filetransfer: send FILE_CHUNK seq %d: %w", seq, err)
			}
			seq++
			chunksSent++
			reportProgress(progress, Progress{Filename: filename, TotalBytes: int(totalSize), ChunksSent: chunksSent, ChunksTotal: chunksTotal})
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return 0, fmt.Errorf("filetransfer: read %s: %w", path, readErr)
		}
	}

	if err := sender.SendFrame(dst, codec.Frame{Type: codec.MsgTypeFileEnd, MsgID: msgID, Seq: seq, Data: ""}); err != nil {
		return 0, fmt.Errorf("filetransfer: send FILE_END: %w", err)
	}

	reportProgress(progress, Progress{Filename: filename, TotalBytes: int(totalSize), ChunksSent: chunksSent, ChunksTotal: chunksTotal, Done: true})
	return seq, nil
}

func reportProgress(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}

// TransferKey identifies one in-flight incoming transfer (spec §3).
type TransferKey struct {
	SrcMAC string
	MsgID  uint32
}

// receiveState is the mutable per-transfer record (spec §3
// "File-transfer state").
type receiveState struct {
	filename     string
	totalSize    int
	chunks       map[uint32][]byte
	receivedSeqs map[uint32]struct{}
}

// ReceiveTable tracks in-flight incoming transfers, keyed by (source MAC,
// message id), across the FILE_INIT/FILE_CHUNK*/FILE_END lifecycle (spec
// §3, §4.3).
type ReceiveTable struct {
	mu        sync.Mutex
	transfers map[TransferKey]*receiveState
}

// NewReceiveTable creates an empty ReceiveTable.
func NewReceiveTable() *ReceiveTable {
	return &ReceiveTable{transfers: make(map[TransferKey]*receiveState)}
}

// Init creates a transfer record on FILE_INIT (spec §4.3 "FILE_INIT").
func (rt *ReceiveTable) Init(key TransferKey, filename string, totalSize int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.transfers[key] = &receiveState{
		filename:     filename,
		totalSize:    totalSize,
		chunks:       make(map[uint32][]byte),
		receivedSeqs: make(map[uint32]struct{}),
	}
}

// AddChunk stores decoded chunk bytes under seq (spec §4.3 "FILE_CHUNK").
// It is a no-op if key has no open transfer (e.g. FILE_INIT was missed).
func (rt *ReceiveTable) AddChunk(key TransferKey, seq uint32, data []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	tr, ok := rt.transfers[key]
	if !ok {
		return
	}
	tr.chunks[seq] = data
	tr.receivedSeqs[seq] = struct{}{}
}

// AddEnd records the FILE_END sentinel's own seq and returns the ascending
// list of all received seqs for the FILE_ACK frame (spec §4.3 "FILE_END").
// The bool result is false if key has no open transfer.
func (rt *ReceiveTable) AddEnd(key TransferKey, seq uint32) ([]uint32, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	tr, ok := rt.transfers[key]
	if !ok {
		return nil, false
	}
	tr.receivedSeqs[seq] = struct{}{}

	seqs := make([]uint32, 0, len(tr.receivedSeqs))
	for s := range tr.receivedSeqs {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, true
}

// Reassembled is the outcome of reassembling and saving a completed
// transfer.
type Reassembled struct {
	SavedPath    string
	Filename     string
	Bytes        int
	SizeMismatch bool
}

// Reassemble concatenates chunk bytes in ascending seq order, compares the
// total length against the declared size (a mismatch is reported through
// Reassembled.SizeMismatch and the file is still written), and persists to disk under
// received_<filename>, suffixing to avoid clobber (spec §6 "Persisted
// state"). The transfer record is destroyed afterward regardless of
// outcome (spec §3 "destroyed after reassembly").
func (rt *ReceiveTable) Reassemble(key TransferKey) (Reassembled, error) {
	rt.mu.Lock()
	tr, ok := rt.transfers[key]
	delete(rt.transfers, key)
	rt.mu.Unlock()

	if !ok {
		return Reassembled{}, fmt.Errorf("filetransfer: no open transfer for %+v", key)
	}

	seqs := make([]uint32, 0, len(tr.chunks))
	for s := range tr.chunks {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var data []byte
	for _, s := range seqs {
		data = append(data, tr.chunks[s]...)
	}

	mismatch := len(data) != tr.totalSize

	savedPath, err := saveReceivedFile(tr.filename, data)
	if err != nil {
		return Reassembled{}, fmt.Errorf("filetransfer: save %s: %w", tr.filename, err)
	}

	return Reassembled{
		SavedPath:    savedPath,
		Filename:     tr.filename,
		Bytes:        len(data),
		SizeMismatch: mismatch,
	}, nil
}

// Destroy removes a transfer record without reassembling it (used for
// cleanup paths that never reach FILE_END).
func (rt *ReceiveTable) Destroy(key TransferKey) {
	rt.mu.Lock()
	delete(rt.transfers, key)
	rt.mu.Unlock()
}

func saveReceivedFile(filename string, data []byte) (string, error) {
	candidate := "received_" + filename
	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]

	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("received_%s_%d%s", base, n, ext)
	}

	if err := os.WriteFile(candidate, data, 0o644); err != nil {
		return "", err
	}
	return candidate, nil
}

// encodeChunk/decodeChunk carry raw chunk bytes through Frame.Data, which
// the codec layer treats as a string before AES-encrypting and
// base64-encoding it a second time (codec.Encode). Base64 here keeps
// arbitrary binary chunk content safe to round-trip as a Go string.
func encodeChunk(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}

// DecodeChunk reverses encodeChunk; callers (internal/router) use it to
// recover raw chunk bytes from a decoded FILE_CHUNK frame's Data field
// before calling ReceiveTable.AddChunk.
func DecodeChunk(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
