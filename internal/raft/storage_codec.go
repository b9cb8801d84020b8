package raft

import (
	"encoding/binary"
	"fmt"
	"hyperraft/internal/types"
	"io"

	"go.etcd.io/raft/v3/raftpb"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldCommandType protowire.Number = 1
	fieldTimestamp   protowire.Number = 2
	fieldCommand     protowire.Number = 3
)

// encodeCommand packs the command fields of an entry into the Data of a raftpb.Entry.
func encodeCommand(e types.LogEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCommandType, protowire.BytesType)
	b = protowire.AppendString(b, string(e.CommandType))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	if len(e.Command) > 0 {
		b = protowire.AppendTag(b, fieldCommand, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Command)
	}
	return b
}

func decodeCommand(b []byte, e *types.LogEntry) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldCommandType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.CommandType = types.CommandType(v)
			b = b[n:]
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.Timestamp = int64(v)
			b = b[n:]
		case num == fieldCommand && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.Command = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func entryToPB(e types.LogEntry) raftpb.Entry {
	return raftpb.Entry{
		Term:  e.Term,
		Index: e.Index,
		Type:  raftpb.EntryNormal,
		Data:  encodeCommand(e),
	}
}

func entryFromPB(pb raftpb.Entry) (types.LogEntry, error) {
	e := types.LogEntry{Index: pb.Index, Term: pb.Term}
	if err := decodeCommand(pb.Data, &e); err != nil {
		return types.LogEntry{}, fmt.Errorf("decode entry %d: %w", pb.Index, err)
	}
	return e, nil
}

func marshalRecord(recType byte, payload []byte) []byte {
	buf := make([]byte, 1+binary.MaxVarintLen64+len(payload))
	buf[0] = recType
	n := binary.PutUvarint(buf[1:], uint64(len(payload)))
	copy(buf[1+n:], payload)
	return buf[:1+n+len(payload)]
}

func unmarshalRecord(data []byte) (byte, []byte, error) {
	if len(data) < 2 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	recType := data[0]
	length, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	start := 1 + n
	end := start + int(length)
	if end > len(data) {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return recType, data[start:end], nil
}
