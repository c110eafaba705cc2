package jupyter

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/kernelrun"
)

// protocolVersion is the Jupyter messaging protocol version spoken here.
const protocolVersion = "5.3"

// Wire message types. Requests go to the kernel's shell and control
// sockets; the broadcast kinds arrive on iopub.
const (
	msgExecuteRequest    = "execute_request"
	msgKernelInfoRequest = "kernel_info_request"
	msgKernelInfoReply   = "kernel_info_reply"
	msgShutdownRequest   = "shutdown_request"

	msgStream        = "stream"
	msgExecuteResult = "execute_result"
	msgDisplayData   = "display_data"
	msgError         = "error"
	msgStatus        = "status"
)

// wireDelimiter separates routing identities from the signed message
// sections in a multipart frame.
var wireDelimiter = []byte("<IDS|MSG>")

var (
	errMalformedFrames = errors.New("jupyter: malformed wire frames")
	errBadSignature    = errors.New("jupyter: bad message signature")
)

// wireHeader is the header section shared by every protocol message.
type wireHeader struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// newHeader builds a request header with a fresh message id.
func newHeader(session, msgType string) wireHeader {
	return wireHeader{
		MsgID:    uuid.NewString(),
		Session:  session,
		Username: "kernelrun",
		Date:     time.Now().UTC().Format(time.RFC3339),
		MsgType:  msgType,
		Version:  protocolVersion,
	}
}

// wireMessage is a parsed inbound message: its own header, the header of
// the request it answers, and the kind-specific content section.
type wireMessage struct {
	Header  wireHeader
	Parent  wireHeader
	Content json.RawMessage
}

// Content schemas. Only the fields this engine reads or writes are
// declared; kernels tolerate the rest being absent.

type executeRequestContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type displayContent struct {
	Data map[string]json.RawMessage `json:"data"`
}

type errorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type shutdownRequestContent struct {
	Restart bool `json:"restart"`
}

// signer computes and verifies HMAC-SHA256 signatures over the four
// serialized message sections, hex-encoded per the protocol.
type signer struct {
	key []byte
}

func (s signer) sign(sections ...[]byte) []byte {
	if len(s.key) == 0 {
		return []byte{}
	}
	mac := hmac.New(sha256.New, s.key)
	for _, sec := range sections {
		mac.Write(sec)
	}
	sum := mac.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

func (s signer) verify(sig []byte, sections ...[]byte) bool {
	return hmac.Equal(sig, s.sign(sections...))
}

// marshalWire encodes a request into the multipart frame layout:
// delimiter, signature, header, parent_header, metadata, content.
// Routing identities are left to the socket.
func marshalWire(sig signer, hdr wireHeader, content any) ([][]byte, error) {
	headerB, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("jupyter: marshal header: %w", err)
	}
	contentB, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("jupyter: marshal content: %w", err)
	}
	parentB := []byte("{}")
	metaB := []byte("{}")
	return [][]byte{
		wireDelimiter,
		sig.sign(headerB, parentB, metaB, contentB),
		headerB,
		parentB,
		metaB,
		contentB,
	}, nil
}

// parseWire locates the delimiter, verifies the signature, and decodes
// the header sections of an inbound multipart frame. Frames before the
// delimiter (routing identities, iopub topics) are skipped.
func parseWire(sig signer, frames [][]byte) (wireMessage, error) {
	delim := -1
	for i, f := range frames {
		if bytes.Equal(f, wireDelimiter) {
			delim = i
			break
		}
	}
	if delim < 0 || len(frames) < delim+6 {
		return wireMessage{}, errMalformedFrames
	}
	signature := frames[delim+1]
	headerB := frames[delim+2]
	parentB := frames[delim+3]
	metaB := frames[delim+4]
	contentB := frames[delim+5]

	if !sig.verify(signature, headerB, parentB, metaB, contentB) {
		return wireMessage{}, errBadSignature
	}

	var wm wireMessage
	if err := json.Unmarshal(headerB, &wm.Header); err != nil {
		return wireMessage{}, fmt.Errorf("jupyter: unmarshal header: %w", err)
	}
	if err := json.Unmarshal(parentB, &wm.Parent); err != nil {
		return wireMessage{}, fmt.Errorf("jupyter: unmarshal parent header: %w", err)
	}
	wm.Content = append(json.RawMessage(nil), contentB...)
	return wm, nil
}

// parseBroadcast translates an inbound iopub message into the root
// vocabulary. Kinds the engine does not model return ok == false and are
// dropped by the pump.
func parseBroadcast(wm wireMessage) (kernelrun.Message, bool) {
	msg := kernelrun.Message{
		ParentID:  wm.Parent.MsgID,
		Timestamp: time.Now(),
	}

	switch wm.Header.MsgType {
	case msgStream:
		var c streamContent
		if err := json.Unmarshal(wm.Content, &c); err != nil {
			return kernelrun.Message{}, false
		}
		msg.Type = kernelrun.MessageStream
		msg.Text = c.Text

	case msgExecuteResult:
		var c displayContent
		if err := json.Unmarshal(wm.Content, &c); err != nil {
			return kernelrun.Message{}, false
		}
		msg.Type = kernelrun.MessageResult
		msg.Text = mimeText(c.Data)

	case msgDisplayData:
		var c displayContent
		if err := json.Unmarshal(wm.Content, &c); err != nil {
			return kernelrun.Message{}, false
		}
		msg.Type = kernelrun.MessageDisplay
		msg.Artifact = mimeImage(c.Data)

	case msgError:
		var c errorContent
		if err := json.Unmarshal(wm.Content, &c); err != nil {
			return kernelrun.Message{}, false
		}
		msg.Type = kernelrun.MessageError
		msg.Traceback = c.Traceback
		if len(msg.Traceback) == 0 {
			msg.Traceback = []string{c.EName + ": " + c.EValue}
		}

	case msgStatus:
		var c statusContent
		if err := json.Unmarshal(wm.Content, &c); err != nil {
			return kernelrun.Message{}, false
		}
		msg.Type = kernelrun.MessageStatus
		msg.State = c.ExecutionState

	default:
		return kernelrun.Message{}, false
	}

	return msg, true
}

// mimeText extracts the text/plain representation from a display bundle.
func mimeText(data map[string]json.RawMessage) string {
	raw, ok := data["text/plain"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// mimeImage extracts an image payload from a display bundle, or nil if
// the bundle carries none. PNG is what matplotlib's inline backend emits.
func mimeImage(data map[string]json.RawMessage) *kernelrun.Artifact {
	raw, ok := data["image/png"]
	if !ok {
		return nil
	}
	var b64 string
	if err := json.Unmarshal(raw, &b64); err != nil {
		return nil
	}
	return &kernelrun.Artifact{MIMEType: "image/png", Data: b64}
}
