// Package atomic provides thin, typed wrappers over sync/atomic so that call
// sites read as field accesses (Load/Store/Inc/CAS) instead of bare functions
// taking pointers.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import "sync/atomic"

type Bool struct{ v int32 }

func (b *Bool) Load() bool  { return atomic.LoadInt32(&b.v) != 0 }
func (b *Bool) Store(val bool) {
	if val {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}

// CAS reports whether the swap from `from` to `to` took place.
func (b *Bool) CAS(from, to bool) bool {
	var o, n int32
	if from {
		o = 1
	}
	if to {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, n)
}

type Int32 struct{ v int32 }

func (i *Int32) Load() int32         { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(val int32)     { atomic.StoreInt32(&i.v, val) }
func (i *Int32) Add(delta int32) int32 { return atomic.AddInt32(&i.v, delta) }
func (i *Int32) Inc() int32          { return i.Add(1) }
func (i *Int32) Dec() int32          { return i.Add(-1) }
func (i *Int32) CAS(old, new int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, new)
}
func (i *Int32) Swap(val int32) int32 { return atomic.SwapInt32(&i.v, val) }

type Int64 struct{ v int64 }

func (i *Int64) Load() int64           { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(val int64)       { atomic.StoreInt64(&i.v, val) }
func (i *Int64) Add(delta int64) int64 { return atomic.AddInt64(&i.v, delta) }
func (i *Int64) Inc() int64            { return i.Add(1) }
func (i *Int64) Dec() int64            { return i.Add(-1) }
func (i *Int64) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, new)
}
func (i *Int64) Swap(val int64) int64 { return atomic.SwapInt64(&i.v, val) }

type Uint32 struct{ v uint32 }

func (u *Uint32) Load() uint32           { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(val uint32)       { atomic.StoreUint32(&u.v, val) }
func (u *Uint32) Add(delta uint32) uint32 { return atomic.AddUint32(&u.v, delta) }
func (u *Uint32) Inc() uint32            { return u.Add(1) }
func (u *Uint32) CAS(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&u.v, old, new)
}

type Uint64 struct{ v uint64 }

func (u *Uint64) Load() uint64           { return atomic.LoadUint64(&u.v) }
func (u *Uint64) Store(val uint64)       { atomic.StoreUint64(&u.v, val) }
func (u *Uint64) Add(delta uint64) uint64 { return atomic.AddUint64(&u.v, delta) }
func (u *Uint64) Inc() uint64            { return u.Add(1) }
func (u *Uint64) CAS(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&u.v, old, new)
}
