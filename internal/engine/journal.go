package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"time"

	"heroes/internal/model"
	"heroes/internal/storage"
)

const (
	payloadLenBytes = 4
	checksumBytes   = 4
	seqNumBytes     = 8
	opTypeBytes     = 1
	timestampBytes  = 8
	headerBytes     = payloadLenBytes + checksumBytes
	minPayloadBytes = seqNumBytes + opTypeBytes + timestampBytes
	maxPayloadBytes = 1 << 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

/*
Journal is an append-only log of applied mutations. It is written only by the
service's writer goroutine, after the collection itself has been saved, so it
is a record of history rather than the source of truth.

Each record is framed as:

| PayloadLength | CRC32C  | Sequence | OpType | UnixNano | Record (JSON) |
|---------------|---------|----------|--------|----------|---------------|
| 4 bytes       | 4 bytes | 8 bytes  | 1 byte | 8 bytes  | N bytes       |

The CRC covers the payload (Sequence through Record). Loading stops at the
first truncated or corrupt record.
*/
type Journal struct {
	path    string
	file    *os.File
	nextSeq uint64
}

// OpenJournal opens or creates the journal at path. A corrupt or truncated
// tail is cut off so new records stay readable, and sequence numbers continue
// after the last intact record.
func OpenJournal(path string) (*Journal, error) {
	entries, validEnd, size, err := readJournal(path)
	if err != nil {
		return nil, err
	}
	if validEnd < size {
		plog.Warningf("truncating journal %s from %d to %d bytes", path, size, validEnd)
		if err := os.Truncate(path, validEnd); err != nil {
			return nil, fmt.Errorf("truncate journal: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	next := uint64(1)
	if n := len(entries); n > 0 {
		next = entries[n-1].Sequence + 1
	}
	return &Journal{path: path, file: f, nextSeq: next}, nil
}

// Append assigns the next sequence number to mut and writes it durably.
func (j *Journal) Append(mut model.Mutation) (model.Mutation, error) {
	if j.file == nil {
		return mut, errors.New("journal is closed")
	}
	mut.Sequence = j.nextSeq
	if mut.At.IsZero() {
		mut.At = time.Now()
	}

	record, err := encodeMutation(mut)
	if err != nil {
		return mut, err
	}
	if err := storage.Write(j.file, record); err != nil {
		return mut, err
	}
	if err := j.file.Sync(); err != nil {
		return mut, fmt.Errorf("sync: %w", err)
	}
	// Increment sequence number only on successful write
	j.nextSeq++
	return mut, nil
}

// Entries reads back every intact record.
func (j *Journal) Entries() ([]model.Mutation, error) {
	return LoadJournal(j.path)
}

func (j *Journal) Close() error {
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// LoadJournal reads the journal at path. A missing file yields no entries.
func LoadJournal(path string) ([]model.Mutation, error) {
	mutations, _, _, err := readJournal(path)
	return mutations, err
}

// readJournal returns the intact records, the offset just past the last of
// them, and the file size.
func readJournal(path string) ([]model.Mutation, int64, int64, error) {
	mutations := make([]model.Mutation, 0)

	readFile, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return mutations, 0, 0, nil
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open journal: %w", err)
	}
	defer readFile.Close()

	fileInfo, err := readFile.Stat()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("stat journal: %w", err)
	}
	fileSize := fileInfo.Size()

	var offset, validEnd int64
	recordNum := 0
	for offset < fileSize {
		if offset+headerBytes > fileSize {
			plog.Warningf("journal truncated at record %d: incomplete header at offset %d", recordNum, offset)
			break
		}
		header, err := storage.Read(readFile, offset, headerBytes)
		if err != nil || len(header) < headerBytes {
			plog.Warningf("journal short read for header at offset %d: %v", offset, err)
			break
		}
		payloadLen := binary.BigEndian.Uint32(header[:payloadLenBytes])
		expectedChecksum := binary.BigEndian.Uint32(header[payloadLenBytes:])
		offset += headerBytes

		if payloadLen > maxPayloadBytes || offset+int64(payloadLen) > fileSize {
			plog.Warningf("journal truncated at record %d: incomplete payload at offset %d (expected %d bytes)",
				recordNum, offset, payloadLen)
			break
		}
		payload, err := storage.Read(readFile, offset, int(payloadLen))
		if err != nil || len(payload) < int(payloadLen) {
			plog.Warningf("journal short read for payload at offset %d: %v", offset, err)
			break
		}
		offset += int64(payloadLen)

		if actual := crc32.Checksum(payload, castagnoli); actual != expectedChecksum {
			plog.Warningf("journal CRC mismatch at record %d: expected %x, got %x - stopping at corruption boundary",
				recordNum, expectedChecksum, actual)
			break
		}

		mut, err := decodePayload(payload)
		if err != nil {
			plog.Warningf("failed to decode journal record %d: %v - stopping", recordNum, err)
			break
		}
		mutations = append(mutations, mut)
		validEnd = offset
		recordNum++
	}

	return mutations, validEnd, fileSize, nil
}

func encodeMutation(mut model.Mutation) ([]byte, error) {
	body, err := json.Marshal(mut.Record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	payload := make([]byte, 0, minPayloadBytes+len(body))
	payload = binary.BigEndian.AppendUint64(payload, mut.Sequence)
	payload = append(payload, byte(mut.Op))
	payload = binary.BigEndian.AppendUint64(payload, uint64(mut.At.UnixNano()))
	payload = append(payload, body...)
	if len(payload) > maxPayloadBytes {
		return nil, fmt.Errorf("journal record (%d bytes) exceeds limit (%d bytes)", len(payload), maxPayloadBytes)
	}

	record := make([]byte, 0, headerBytes+len(payload))
	record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	record = binary.BigEndian.AppendUint32(record, crc32.Checksum(payload, castagnoli))
	record = append(record, payload...)
	return record, nil
}

func decodePayload(payload []byte) (model.Mutation, error) {
	if len(payload) < minPayloadBytes {
		return model.Mutation{}, fmt.Errorf("payload too short: %d bytes (minimum %d)", len(payload), minPayloadBytes)
	}

	pos := 0
	seqNum := binary.BigEndian.Uint64(payload[pos : pos+seqNumBytes])
	pos += seqNumBytes

	op := model.OpsType(payload[pos])
	if op != model.CREATE && op != model.UPDATE && op != model.DELETE {
		return model.Mutation{}, fmt.Errorf("invalid operation type: %d", op)
	}
	pos += opTypeBytes

	at := int64(binary.BigEndian.Uint64(payload[pos : pos+timestampBytes]))
	pos += timestampBytes

	var rec model.Character
	if err := json.Unmarshal(payload[pos:], &rec); err != nil {
		return model.Mutation{}, fmt.Errorf("decode record: %w", err)
	}

	return model.Mutation{
		Sequence: seqNum,
		Op:       op,
		At:       time.Unix(0, at),
		Record:   rec,
	}, nil
}
