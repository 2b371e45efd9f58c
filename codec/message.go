// Package codec defines the opaque wire-serialization contract that the
// rpc engine's Encoder and Decoder are written against. It never touches
// sockets itself; it only knows how to size and marshal a request or
// response body.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

// Message is the cached-size fast path every request/response body must
// satisfy, matching the contract generated msgp types already implement:
// Msgsize() is a cheap upper bound used to size the output buffer before
// MarshalMsg ever runs, so the Encoder can decide "not enough space; retry
// later" without a trial marshal.
type Message interface {
	Msgsize() int
	MarshalMsg(b []byte) ([]byte, error)
	UnmarshalMsg(b []byte) ([]byte, error)
}

// MethodDescriptor is the metadata CallMethod's caller supplies for a given
// RPC method: which service, which method slot, and whether a response is
// expected at all.
type MethodDescriptor struct {
	ServiceID     uint32
	MethodIndex   uint32
	FireAndForget bool
}
