package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grafeo-db/grafeo/gerrors"
)

// RecordType tags a WAL frame's payload shape (spec §6).
type RecordType uint8

const (
	RecCreateNode RecordType = iota + 1
	RecDeleteNode
	RecCreateEdge
	RecDeleteEdge
	RecSetProperty
	RecRemoveProperty
	RecAddLabel
	RecRemoveLabel
	RecCommit
	RecAbort
	RecCheckpoint
)

// SyncMode controls when WAL writes are fsynced, trading durability for
// throughput (spec §6).
type SyncMode int

const (
	// SyncFull fsyncs on every commit; only this mode provides
	// crash-durability per commit.
	SyncFull SyncMode = iota
	// SyncNormal fsyncs on segment rotation and on checkpoint; no fsync
	// runs on a periodic interval.
	SyncNormal
	// SyncOff never fsyncs; fastest, loses uncommitted-to-disk writes on crash.
	SyncOff
)

// frameHeaderSize is the fixed portion of every frame: u32 length, u8 type,
// u64 tx_id, u64 sequence.
const frameHeaderSize = 4 + 1 + 8 + 8

// walSegmentMaxBytes bounds a single segment file before Append rotates to
// the next one (spec §6: "P/wal/ — numbered log segments (0000001.log,
// 0000002.log, …) rotated at a size threshold").
const walSegmentMaxBytes = 64 << 20

// Record is one decoded WAL entry. Payload is the raw record-specific bytes;
// recovery.go is responsible for further decoding it per Type.
type Record struct {
	Type     RecordType
	TxID     uint64
	Sequence uint64
	Payload  []byte
}

// WAL is an append-only, binary-framed write-ahead log, replacing the
// teacher's JSON-lines WALEntry format (pkg/storage/wal.go) with the exact
// byte layout spec §6 mandates: "u32 length | u8 type | u64 tx_id | u64
// sequence | payload | u32 crc32, CRC32 over the entire frame except
// itself." The teacher's own crc32Checksum helper does not compute a real
// CRC32 (it XOR-folds bytes); this implementation uses the standard
// library's IEEE CRC32, which spec §6's "CRC32" and recovery invariant I4
// require bit-for-bit.
//
// The log is split across numbered segment files (dir/0000001.log,
// dir/0000002.log, …) per spec §6's on-disk layout, rotated whenever the
// active segment passes walSegmentMaxBytes. Sequence numbers are global
// across segments, so replay order only depends on segment number order,
// never on which segment a given sequence happens to land in.
type WAL struct {
	mu         sync.Mutex
	dir        string
	file       *os.File
	writer     *bufio.Writer
	segmentNum uint64
	segmentLen int64
	sequence   atomic.Uint64
	mode       SyncMode
	closed     atomic.Bool
}

// segmentName renders the 7-digit numbered segment filename spec §6 shows
// ("0000001.log", "0000002.log", ...).
func segmentName(num uint64) string {
	return fmt.Sprintf("%07d.log", num)
}

// segmentNumbers lists every numbered segment file under dir, ascending. A
// missing directory yields an empty list, not an error.
func segmentNumbers(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gerrors.Wrap(gerrors.KindIO, "list wal directory", err)
	}

	var nums []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		trimmed := strings.TrimSuffix(e.Name(), ".log")
		if trimmed == e.Name() {
			continue
		}
		n, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// Open opens (creating if needed) the numbered segment sequence under dir,
// replays every existing segment in order to resume the global sequence
// counter, and appends to the newest one (segment 1 for a fresh WAL).
func Open(dir string, mode SyncMode) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "create wal directory", err)
	}

	nums, err := segmentNumbers(dir)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		nums = []uint64{1}
	}

	lastSeq, err := lastValidSequenceAcross(dir, nums)
	if err != nil {
		return nil, err
	}

	active := nums[len(nums)-1]
	path := filepath.Join(dir, segmentName(active))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "open wal segment", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, gerrors.Wrap(gerrors.KindIO, "stat wal segment", err)
	}

	w := &WAL{
		dir:        dir,
		file:       f,
		writer:     bufio.NewWriterSize(f, 64*1024),
		segmentNum: active,
		segmentLen: info.Size(),
		mode:       mode,
	}
	w.sequence.Store(lastSeq)
	return w, nil
}

// lastValidSequenceAcross replays every segment in nums, in ascending order,
// and returns the highest sequence number among CRC-valid frames. A
// corrupt-but-complete frame anywhere aborts the scan with an error (the
// same refuse-to-open-over-corruption contract the single-file WAL had);
// a torn trailing frame in the last segment simply ends the scan.
func lastValidSequenceAcross(dir string, nums []uint64) (uint64, error) {
	var last uint64
	for _, n := range nums {
		path := filepath.Join(dir, segmentName(n))
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, gerrors.Wrap(gerrors.KindIO, "open wal segment for scan", err)
		}

		r := bufio.NewReader(f)
		for {
			rec, ok, err := readFrame(r)
			if err != nil {
				f.Close()
				return 0, err
			}
			if !ok {
				break
			}
			last = rec.Sequence
		}
		f.Close()
	}
	return last, nil
}

// Append encodes and writes one frame, returning its assigned sequence
// number. Rotates to a new segment first if the frame would push the
// active segment past walSegmentMaxBytes. Fsyncs immediately when mode is
// SyncFull.
func (w *WAL) Append(typ RecordType, txID uint64, payload []byte) (uint64, error) {
	if w.closed.Load() {
		return 0, gerrors.ErrStorageClosed
	}

	seq := w.sequence.Add(1)
	frame := encodeFrame(typ, txID, seq, payload)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segmentLen > 0 && w.segmentLen+int64(len(frame)) > walSegmentMaxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	if _, err := w.writer.Write(frame); err != nil {
		return 0, gerrors.Wrap(gerrors.KindIO, "wal append", err)
	}
	w.segmentLen += int64(len(frame))
	if w.mode == SyncFull {
		if err := w.syncLocked(); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

// rotateLocked flushes and closes the active segment and opens the next
// numbered one. Callers must hold w.mu.
func (w *WAL) rotateLocked() error {
	if err := w.writer.Flush(); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "flush wal segment before rotation", err)
	}
	if w.mode != SyncOff {
		if err := w.file.Sync(); err != nil {
			return gerrors.Wrap(gerrors.KindIO, "sync wal segment before rotation", err)
		}
	}
	if err := w.file.Close(); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "close wal segment", err)
	}

	next := w.segmentNum + 1
	path := filepath.Join(w.dir, segmentName(next))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return gerrors.Wrap(gerrors.KindIO, "create next wal segment", err)
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 64*1024)
	w.segmentNum = next
	w.segmentLen = 0
	return nil
}

// Compact forces a fresh segment and deletes every segment that predates
// it. storage.CheckpointCoordinator calls this right after a checkpoint
// sync: the Store snapshot it just wrote already reflects everything the
// older segments contain, so recovery will never need to replay past a
// checkpoint it can load. This is whole-log compaction rather than
// precise per-sequence pruning, but it is safe for the same reason a
// checkpoint is safe to take at all — nothing durable is lost, since it is
// already captured in the snapshot.
func (w *WAL) Compact() error {
	if w.closed.Load() {
		return gerrors.ErrStorageClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	retire := w.segmentNum
	if err := w.rotateLocked(); err != nil {
		return err
	}

	nums, err := segmentNumbers(w.dir)
	if err != nil {
		return err
	}
	for _, n := range nums {
		if n > retire {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, segmentName(n))); err != nil && !os.IsNotExist(err) {
			return gerrors.Wrap(gerrors.KindIO, "remove archived wal segment", err)
		}
	}
	return nil
}

// Sync flushes buffered writes and, unless mode is SyncOff, fsyncs them to
// stable storage. storage.CheckpointCoordinator calls it on checkpoint;
// nothing calls it on a timer.
func (w *WAL) Sync() error {
	if w.closed.Load() {
		return gerrors.ErrStorageClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "wal flush", err)
	}
	if w.mode != SyncOff {
		if err := w.file.Sync(); err != nil {
			return gerrors.Wrap(gerrors.KindIO, "wal fsync", err)
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "wal flush on close", err)
	}
	return w.file.Close()
}

// Sequence returns the most recently assigned sequence number.
func (w *WAL) Sequence() uint64 { return w.sequence.Load() }

// encodeFrame lays out a frame exactly per spec §6: length covers type
// through crc32 inclusive (everything after the length field itself).
func encodeFrame(typ RecordType, txID, seq uint64, payload []byte) []byte {
	length := uint32(1 + 8 + 8 + len(payload) + 4)
	buf := make([]byte, 4+int(length))

	binary.LittleEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(typ)
	binary.LittleEndian.PutUint64(buf[5:13], txID)
	binary.LittleEndian.PutUint64(buf[13:21], seq)
	copy(buf[21:21+len(payload)], payload)

	sum := crc32.ChecksumIEEE(buf[0 : 21+len(payload)])
	binary.LittleEndian.PutUint32(buf[21+len(payload):], sum)
	return buf
}

// readFrame reads and CRC-validates one frame from r. ok is false with a
// nil error at a clean EOF between frames or at a torn (incomplete) frame;
// err is non-nil (gerrors.Corruption) for a complete frame whose CRC does
// not match, which recovery.go propagates as a recovery failure.
func readFrame(r *bufio.Reader) (Record, bool, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Record{}, false, nil
		}
		return Record{}, false, nil // torn length prefix: stop, don't error
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 1+8+8+4 {
		return Record{}, false, nil
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Record{}, false, nil // torn frame body: stop replay here
	}

	full := append(lenBuf[:], rest...)
	payloadLen := int(length) - (1 + 8 + 8 + 4)
	storedCRC := binary.LittleEndian.Uint32(full[4+int(length)-4:])
	computed := crc32.ChecksumIEEE(full[0 : 4+int(length)-4])
	if storedCRC != computed {
		return Record{}, false, gerrors.Corruption.WithHint("wal frame CRC mismatch")
	}

	rec := Record{
		Type:     RecordType(full[4]),
		TxID:     binary.LittleEndian.Uint64(full[5:13]),
		Sequence: binary.LittleEndian.Uint64(full[13:21]),
		Payload:  full[21 : 21+payloadLen],
	}
	return rec, true, nil
}

// ReadAll replays every CRC-valid frame across dir's numbered segments, in
// ascending segment order, stopping at (not erroring on) the first torn
// frame in the last segment, and erroring on the first corrupt-but-complete
// frame anywhere (spec §6 recovery contract, I4). It is the primitive
// storage.Recover builds transaction replay on top of.
func ReadAll(dir string, visit func(Record) error) error {
	nums, err := segmentNumbers(dir)
	if err != nil {
		return err
	}

	for _, n := range nums {
		path := filepath.Join(dir, segmentName(n))
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return gerrors.Wrap(gerrors.KindIO, "open wal segment for replay", err)
		}

		r := bufio.NewReader(f)
		for {
			rec, ok, err := readFrame(r)
			if err != nil {
				f.Close()
				return err
			}
			if !ok {
				break
			}
			if err := visit(rec); err != nil {
				f.Close()
				return err
			}
		}
		f.Close()
	}
	return nil
}
