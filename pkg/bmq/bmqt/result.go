package bmqt

import (
	"fmt"
	"slices"
)

// ResultCode is implemented by every result enumeration of the broker API.
// Ordinals are stable on both sides of the native boundary.
type ResultCode interface {
	fmt.Stringer

	Ordinal() int32
	IsSuccess() bool
}

type (
	// GenericResult is the outcome set shared by all session operations.
	GenericResult int32

	// OpenQueueResult is the outcome of an open queue handshake.
	OpenQueueResult int32

	// ConfigureQueueResult is the outcome of a configure queue request.
	ConfigureQueueResult int32

	// CloseQueueResult is the outcome of a close queue request.
	CloseQueueResult int32

	// PostResult is the synchronous outcome of handing a message to the native layer.
	PostResult int32

	// AckResult is the broker's verdict on a posted message.
	AckResult int32
)

const (
	GenericSuccess         GenericResult = 0
	GenericUnknown         GenericResult = -1
	GenericTimeout         GenericResult = -2
	GenericNotConnected    GenericResult = -3
	GenericCanceled        GenericResult = -4
	GenericNotSupported    GenericResult = -5
	GenericRefused         GenericResult = -6
	GenericInvalidArgument GenericResult = -7
	GenericNotReady        GenericResult = -8
)

const (
	OpenQueueSuccess                OpenQueueResult = 0
	OpenQueueUnknown                OpenQueueResult = -1
	OpenQueueTimeout                OpenQueueResult = -2
	OpenQueueNotConnected           OpenQueueResult = -3
	OpenQueueCanceled               OpenQueueResult = -4
	OpenQueueNotSupported           OpenQueueResult = -5
	OpenQueueRefused                OpenQueueResult = -6
	OpenQueueInvalidArgument        OpenQueueResult = -7
	OpenQueueNotReady               OpenQueueResult = -8
	OpenQueueAlreadyOpened          OpenQueueResult = 100
	OpenQueueAlreadyInProgress      OpenQueueResult = 101
	OpenQueueInvalidURI             OpenQueueResult = -100
	OpenQueueInvalidFlags           OpenQueueResult = -101
	OpenQueueCorrelationIDNotUnique OpenQueueResult = -102
)

const (
	ConfigureQueueSuccess           ConfigureQueueResult = 0
	ConfigureQueueUnknown           ConfigureQueueResult = -1
	ConfigureQueueTimeout           ConfigureQueueResult = -2
	ConfigureQueueNotConnected      ConfigureQueueResult = -3
	ConfigureQueueCanceled          ConfigureQueueResult = -4
	ConfigureQueueNotSupported      ConfigureQueueResult = -5
	ConfigureQueueRefused           ConfigureQueueResult = -6
	ConfigureQueueInvalidArgument   ConfigureQueueResult = -7
	ConfigureQueueNotReady          ConfigureQueueResult = -8
	ConfigureQueueAlreadyInProgress ConfigureQueueResult = 100
	ConfigureQueueInvalidQueue      ConfigureQueueResult = -101
)

const (
	CloseQueueSuccess           CloseQueueResult = 0
	CloseQueueUnknown           CloseQueueResult = -1
	CloseQueueTimeout           CloseQueueResult = -2
	CloseQueueNotConnected      CloseQueueResult = -3
	CloseQueueCanceled          CloseQueueResult = -4
	CloseQueueNotSupported      CloseQueueResult = -5
	CloseQueueRefused           CloseQueueResult = -6
	CloseQueueInvalidArgument   CloseQueueResult = -7
	CloseQueueNotReady          CloseQueueResult = -8
	CloseQueueAlreadyClosed     CloseQueueResult = 100
	CloseQueueAlreadyInProgress CloseQueueResult = 101
	CloseQueueUnknownQueue      CloseQueueResult = -100
	CloseQueueInvalidQueue      CloseQueueResult = -101
)

const (
	PostSuccess         PostResult = 0
	PostUnknown         PostResult = -1
	PostTimeout         PostResult = -2
	PostNotConnected    PostResult = -3
	PostCanceled        PostResult = -4
	PostNotSupported    PostResult = -5
	PostRefused         PostResult = -6
	PostInvalidArgument PostResult = -7
	PostNotReady        PostResult = -8
	PostBandwidthLimit  PostResult = -100
)

const (
	AckSuccess         AckResult = 0
	AckUnknown         AckResult = -1
	AckTimeout         AckResult = -2
	AckNotConnected    AckResult = -3
	AckCanceled        AckResult = -4
	AckNotSupported    AckResult = -5
	AckRefused         AckResult = -6
	AckInvalidArgument AckResult = -7
	AckNotReady        AckResult = -8
	AckLimitMessages   AckResult = -100
	AckLimitBytes      AckResult = -101
	AckStorageFailure  AckResult = -104
)

var genericNames = map[int32]string{
	0:  "SUCCESS",
	-1: "UNKNOWN",
	-2: "TIMEOUT",
	-3: "NOT_CONNECTED",
	-4: "CANCELED",
	-5: "NOT_SUPPORTED",
	-6: "REFUSED",
	-7: "INVALID_ARGUMENT",
	-8: "NOT_READY",
}

var (
	openQueueNames = map[int32]string{
		100:  "ALREADY_OPENED",
		101:  "ALREADY_IN_PROGRESS",
		-100: "INVALID_URI",
		-101: "INVALID_FLAGS",
		-102: "CORRELATIONID_NOT_UNIQUE",
	}
	configureQueueNames = map[int32]string{
		100:  "ALREADY_IN_PROGRESS",
		-101: "INVALID_QUEUE",
	}
	closeQueueNames = map[int32]string{
		100:  "ALREADY_CLOSED",
		101:  "ALREADY_IN_PROGRESS",
		-100: "UNKNOWN_QUEUE",
		-101: "INVALID_QUEUE",
	}
	postNames = map[int32]string{
		-100: "BW_LIMIT",
	}
	ackNames = map[int32]string{
		-100: "LIMIT_MESSAGES",
		-101: "LIMIT_BYTES",
		-104: "STORAGE_FAILURE",
	}
)

func resultName(v int32, specific map[int32]string) string {
	if name, ok := genericNames[v]; ok {
		return name
	}

	if name, ok := specific[v]; ok {
		return name
	}

	return fmt.Sprintf("UNDEFINED(%d)", v)
}

func isKnown(v int32, specific map[int32]string) bool {
	if _, ok := genericNames[v]; ok {
		return true
	}

	_, ok := specific[v]

	return ok
}

func ordinals(specific map[int32]string) []int32 {
	out := make([]int32, 0, len(genericNames)+len(specific))
	for v := range genericNames {
		out = append(out, v)
	}

	for v := range specific {
		out = append(out, v)
	}

	slices.Sort(out)

	return out
}

// GenericResultFromOrdinal translates a native ordinal. Values outside the set map to GenericUnknown.
func GenericResultFromOrdinal(v int32) GenericResult {
	if !isKnown(v, nil) {
		return GenericUnknown
	}

	return GenericResult(v)
}

// OpenQueueResultFromOrdinal translates a native ordinal. Values outside the set map to OpenQueueUnknown.
func OpenQueueResultFromOrdinal(v int32) OpenQueueResult {
	if !isKnown(v, openQueueNames) {
		return OpenQueueUnknown
	}

	return OpenQueueResult(v)
}

// ConfigureQueueResultFromOrdinal translates a native ordinal. Values outside the set map to ConfigureQueueUnknown.
func ConfigureQueueResultFromOrdinal(v int32) ConfigureQueueResult {
	if !isKnown(v, configureQueueNames) {
		return ConfigureQueueUnknown
	}

	return ConfigureQueueResult(v)
}

// CloseQueueResultFromOrdinal translates a native ordinal. Values outside the set map to CloseQueueUnknown.
func CloseQueueResultFromOrdinal(v int32) CloseQueueResult {
	if !isKnown(v, closeQueueNames) {
		return CloseQueueUnknown
	}

	return CloseQueueResult(v)
}

// PostResultFromOrdinal translates a native ordinal. Values outside the set map to PostUnknown.
func PostResultFromOrdinal(v int32) PostResult {
	if !isKnown(v, postNames) {
		return PostUnknown
	}

	return PostResult(v)
}

// AckResultFromOrdinal translates a native ordinal. Values outside the set map to AckUnknown.
func AckResultFromOrdinal(v int32) AckResult {
	if !isKnown(v, ackNames) {
		return AckUnknown
	}

	return AckResult(v)
}

// GenericResults lists every member of the generic outcome set in ordinal order.
func GenericResults() []GenericResult {
	out := make([]GenericResult, 0, len(genericNames))
	for _, v := range ordinals(nil) {
		out = append(out, GenericResult(v))
	}

	return out
}

// OpenQueueResults lists every member of the open queue outcome set in ordinal order.
func OpenQueueResults() []OpenQueueResult {
	out := make([]OpenQueueResult, 0, len(genericNames)+len(openQueueNames))
	for _, v := range ordinals(openQueueNames) {
		out = append(out, OpenQueueResult(v))
	}

	return out
}

func (r GenericResult) String() string         { return resultName(int32(r), nil) }
func (r GenericResult) Ordinal() int32         { return int32(r) }
func (r GenericResult) IsSuccess() bool        { return r == GenericSuccess }
func (r OpenQueueResult) String() string       { return resultName(int32(r), openQueueNames) }
func (r OpenQueueResult) Ordinal() int32       { return int32(r) }
func (r OpenQueueResult) IsSuccess() bool      { return r == OpenQueueSuccess }
func (r ConfigureQueueResult) String() string  { return resultName(int32(r), configureQueueNames) }
func (r ConfigureQueueResult) Ordinal() int32  { return int32(r) }
func (r ConfigureQueueResult) IsSuccess() bool { return r == ConfigureQueueSuccess }
func (r CloseQueueResult) String() string      { return resultName(int32(r), closeQueueNames) }
func (r CloseQueueResult) Ordinal() int32      { return int32(r) }
func (r CloseQueueResult) IsSuccess() bool     { return r == CloseQueueSuccess }
func (r PostResult) String() string            { return resultName(int32(r), postNames) }
func (r PostResult) Ordinal() int32            { return int32(r) }
func (r PostResult) IsSuccess() bool           { return r == PostSuccess }
func (r AckResult) String() string             { return resultName(int32(r), ackNames) }
func (r AckResult) Ordinal() int32             { return int32(r) }
func (r AckResult) IsSuccess() bool            { return r == AckSuccess }
