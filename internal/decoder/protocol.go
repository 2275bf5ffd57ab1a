// Package decoder bridges the player and a decoding engine running on its
// own goroutine. Both directions are plain messages tagged with a Kind.
package decoder

import (
	"fmt"
	"time"

	"github.com/llehouerou/ripple/internal/media"
)

// Code is a result code returned by an engine.
type Code int

const (
	CodeSuccess Code = iota
	CodeInvalidParam
	CodeInvalidState // typically: not enough data cached yet
	CodeInvalidData
	CodeInvalidFormat
	CodeNullPointer
	CodeCacheOpen
	CodeEOF // decoding finished
	CodeEngine
	CodeOldFrame // stale frame, poll again
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInvalidParam:
		return "invalid param"
	case CodeInvalidState:
		return "invalid state"
	case CodeInvalidData:
		return "invalid data"
	case CodeInvalidFormat:
		return "invalid format"
	case CodeNullPointer:
		return "null pointer"
	case CodeCacheOpen:
		return "cache open error"
	case CodeEOF:
		return "eof"
	case CodeEngine:
		return "engine error"
	case CodeOldFrame:
		return "old frame"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// RequestKind discriminates requests sent to the bridge.
type RequestKind int

const (
	ReqInit RequestKind = iota
	ReqUninit
	ReqOpen
	ReqClose
	ReqFeedData
	ReqStartDecoding
	ReqPauseDecoding
	ReqSeekTo
)

func (k RequestKind) String() string {
	switch k {
	case ReqInit:
		return "init"
	case ReqUninit:
		return "uninit"
	case ReqOpen:
		return "open"
	case ReqClose:
		return "close"
	case ReqFeedData:
		return "feed"
	case ReqStartDecoding:
		return "start decoding"
	case ReqPauseDecoding:
		return "pause decoding"
	case ReqSeekTo:
		return "seek"
	default:
		return fmt.Sprintf("request %d", int(k))
	}
}

// Request is one message to the decode executor. Session tags every event
// produced while handling it.
type Request struct {
	Kind    RequestKind
	Session uint64

	TotalSize     int64         // Init
	ChunkCapacity int           // Init
	Data          []byte        // FeedData, ownership moves to the bridge
	PollInterval  time.Duration // StartDecoding
	SeekMs        int64         // SeekTo
	Accurate      bool          // SeekTo
}

func Init(session uint64, totalSize int64, chunkCapacity int) Request {
	return Request{Kind: ReqInit, Session: session, TotalSize: totalSize, ChunkCapacity: chunkCapacity}
}

func Uninit(session uint64) Request { return Request{Kind: ReqUninit, Session: session} }

func Open(session uint64) Request { return Request{Kind: ReqOpen, Session: session} }

func Close(session uint64) Request { return Request{Kind: ReqClose, Session: session} }

func FeedData(session uint64, data []byte) Request {
	return Request{Kind: ReqFeedData, Session: session, Data: data}
}

func StartDecoding(session uint64, interval time.Duration) Request {
	return Request{Kind: ReqStartDecoding, Session: session, PollInterval: interval}
}

func PauseDecoding(session uint64) Request {
	return Request{Kind: ReqPauseDecoding, Session: session}
}

func SeekTo(session uint64, ms int64, accurate bool) Request {
	return Request{Kind: ReqSeekTo, Session: session, SeekMs: ms, Accurate: accurate}
}

// EventKind discriminates events emitted by the bridge.
type EventKind int

const (
	EvInitResult EventKind = iota
	EvOpenResult
	EvCloseResult
	EvVideoUnit
	EvAudioUnit
	EvDecodeFinished
	EvRequestData
	EvSeekResult
)

func (k EventKind) String() string {
	switch k {
	case EvInitResult:
		return "init result"
	case EvOpenResult:
		return "open result"
	case EvCloseResult:
		return "close result"
	case EvVideoUnit:
		return "video unit"
	case EvAudioUnit:
		return "audio unit"
	case EvDecodeFinished:
		return "decode finished"
	case EvRequestData:
		return "request data"
	case EvSeekResult:
		return "seek result"
	default:
		return fmt.Sprintf("event %d", int(k))
	}
}

// Event is one message from the decode executor.
type Event struct {
	Kind    EventKind
	Session uint64
	Code    Code

	// OpenResult, valid when Code is CodeSuccess.
	Video media.VideoParams
	Audio media.AudioParams

	// VideoUnit and AudioUnit.
	Unit media.Unit

	// RequestData: Offset >= 0 asks for bytes from that position; -1 means
	// Available bytes are already cached ahead of the read position.
	Offset    int64
	Available int64
}
