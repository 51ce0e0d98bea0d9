// Package transport is the gnet-backed iface.RpcClientPool/RpcClient the
// submitter dispatches PushActorTask and CancelTask through. Framing
// follows the teacher's gate protocol (internal/gate/protocol, encode.go):
// a fixed-size header in front of a variable-length body, with a 4-byte
// length, a 1-byte command, a 1-byte action, a 2-byte error code and a
// 4-byte correlation index that pairs a reply with the request that
// caused it. The body itself is msgpack, the serializer the teacher
// declares but never used for its own wire protocol.
package transport

import (
	"encoding/binary"

	"actorsub/pkg/lib"

	"github.com/panjf2000/gnet/v2"
)

const headLen = 12

// command identifies which rpc a frame carries.
type command uint8

const (
	cmdPushActorTask command = 1
	cmdCancelTask    command = 2
)

// action distinguishes a request from its reply within one command.
type action uint8

const (
	actRequest action = 1
	actReply   action = 2
)

// frame is the wire unit: header fields plus an opaque msgpack body.
type frame struct {
	length uint32
	cmd    command
	act    action
	errno  uint16
	index  uint32
	data   []byte
}

// encodeFrame builds one wire frame into a lib.Buffer, the teacher's own
// growable byte buffer, rather than hand-indexing a byte slice.
func encodeFrame(f *frame) []byte {
	f.length = uint32(len(f.data))

	var scratch [4]byte
	buf := lib.New(headLen + len(f.data))

	binary.BigEndian.PutUint32(scratch[:4], f.length)
	buf.Write(scratch[:4])
	buf.WriteByte(byte(f.cmd))
	buf.WriteByte(byte(f.act))
	binary.BigEndian.PutUint16(scratch[:2], f.errno)
	buf.Write(scratch[:2])
	binary.BigEndian.PutUint32(scratch[:4], f.index)
	buf.Write(scratch[:4])
	buf.Write(f.data)

	return buf.Readable()
}

// decodeFrames drains every complete frame currently buffered on reader,
// leaving a partial trailing frame for the next OnTraffic call.
func decodeFrames(reader gnet.Reader) ([]*frame, error) {
	var out []*frame
	for {
		if reader.InboundBuffered() < headLen {
			return out, nil
		}
		head, err := reader.Peek(headLen)
		if err != nil {
			return out, err
		}
		bodyLen := binary.BigEndian.Uint32(head[0:4])
		total := headLen + int(bodyLen)
		if reader.InboundBuffered() < total {
			return out, nil
		}

		buf, err := reader.Peek(total)
		if err != nil {
			return out, err
		}
		f := &frame{
			length: bodyLen,
			cmd:    command(buf[4]),
			act:    action(buf[5]),
			errno:  binary.BigEndian.Uint16(buf[6:8]),
			index:  binary.BigEndian.Uint32(buf[8:12]),
		}
		f.data = make([]byte, bodyLen)
		copy(f.data, buf[headLen:total])
		out = append(out, f)

		if _, err := reader.Discard(total); err != nil {
			return out, err
		}
	}
}
