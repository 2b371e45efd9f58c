package rpc

import (
	"encoding/binary"

	"github.com/vbirds/corpc/cmn"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
)

// Wire framing.
//
// Request:  u32 body_size (BE) || u32 service_id (BE) || u32 method_index (BE) || u64 call_id (BE) || body
// Response: u32 body_size (BE) || u64 call_id (BE) || body
const (
	reqHeadSize  = 20
	respHeadSize = 12
)

// body sub-header: compression is an internal concern of the opaque body
// and never touches the u32/u64 head fields above. A single leading flag
// byte is enough since only one scheme (LZ4) is wired.
const (
	bodyPlain = 0
	bodyLZ4   = 1
)

// EncodeRequest serializes a CallTask's request into a complete request
// frame using the codec's cached-size fast path (Msgsize before Marshal).
func EncodeRequest(t *CallTask, cfg *cmn.Config) ([]byte, error) {
	var raw []byte
	if t.Request != nil {
		var err error
		raw, err = t.Request.MarshalMsg(make([]byte, 0, t.Request.Msgsize()))
		if err != nil {
			return nil, errors.Wrap(err, "rpc: marshal request")
		}
	}
	body := maybeCompress(raw, cfg)

	if reqHeadSize+len(body) > cfg.Transport.MaxHeaderSize && cfg.Transport.MaxHeaderSize > 0 {
		return nil, errors.Errorf("rpc: request body %d exceeds max header size %d", len(body), cfg.Transport.MaxHeaderSize)
	}

	buf := make([]byte, reqHeadSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(buf[4:8], t.ServiceID)
	binary.BigEndian.PutUint32(buf[8:12], t.MethodIndex)
	binary.BigEndian.PutUint64(buf[12:20], t.CallID)
	copy(buf[reqHeadSize:], body)
	return buf, nil
}

// EncodeResponse serializes a response frame the way a server would; the
// package's tests use it to feed the decoder. cmd/echoserver builds its
// frames itself and does not call it.
func EncodeResponse(callID uint64, payload []byte, cfg *cmn.Config) []byte {
	body := maybeCompress(payload, cfg)
	buf := make([]byte, respHeadSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.BigEndian.PutUint64(buf[4:12], callID)
	copy(buf[respHeadSize:], body)
	return buf
}

func maybeCompress(raw []byte, cfg *cmn.Config) []byte {
	if cfg.Transport.Compression != cmn.CompressionLZ4 || len(raw) < cfg.Transport.CompressThreshold {
		return append([]byte{bodyPlain}, raw...)
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil || n == 0 || n >= len(raw) {
		return append([]byte{bodyPlain}, raw...)
	}
	out := make([]byte, 0, 1+4+n)
	out = append(out, bodyLZ4)
	var szbuf [4]byte
	binary.BigEndian.PutUint32(szbuf[:], uint32(len(raw)))
	out = append(out, szbuf[:]...)
	out = append(out, compressed[:n]...)
	return out
}

func maybeDecompress(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	flag, rest := body[0], body[1:]
	switch flag {
	case bodyPlain:
		return rest, nil
	case bodyLZ4:
		if len(rest) < 4 {
			return nil, errProtocolViolation("truncated lz4 sub-header")
		}
		origSize := binary.BigEndian.Uint32(rest[:4])
		out := make([]byte, origSize)
		n, err := lz4.UncompressBlock(rest[4:], out)
		if err != nil {
			return nil, errors.Wrap(err, "rpc: lz4 decompress")
		}
		return out[:n], nil
	default:
		return nil, errProtocolViolation("unknown body compression flag %d", flag)
	}
}

// decodeResponseHead parses the fixed 12-byte response head.
func decodeResponseHead(head []byte) (bodySize uint32, callID uint64) {
	bodySize = binary.BigEndian.Uint32(head[0:4])
	callID = binary.BigEndian.Uint64(head[4:12])
	return
}

// Router pushes a resolved CallTask onto the client's downstream resume
// queue. It holds no state of its own.
type Router struct{ downstream chan<- *CallTask }

func (r *Router) route(t *CallTask) { r.downstream <- t }

// decode resolves a response frame: under the connection's mutex, look up and
// remove callID from the in-flight map; absent is a protocol violation.
// Parse failure is a hard error for this frame only — the connection
// continues.
func (conn *Connection) decode(head, rawBody []byte) error {
	bodySize, callID := decodeResponseHead(head)
	_ = bodySize
	conn.touch()

	conn.mu.Lock()
	task, ok := conn.inflight[callID]
	if ok {
		delete(conn.inflight, callID)
	}
	conn.mu.Unlock()

	if !ok {
		return errProtocolViolation("unknown or duplicate call id %d", callID)
	}

	body, err := maybeDecompress(rawBody)
	if err != nil {
		task.Ctrl.SetFailed(err.Error())
		conn.router.route(task)
		return err
	}
	if task.Response != nil && len(body) > 0 {
		if _, err := task.Response.UnmarshalMsg(body); err != nil {
			task.Ctrl.SetFailed(errors.Wrap(err, "rpc: unmarshal response").Error())
			conn.router.route(task)
			return errProtocolViolation("unmarshal call id %d: %v", callID, err)
		}
	}
	conn.router.route(task)
	return nil
}
