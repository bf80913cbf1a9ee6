package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// maxHashDepth bounds the reflection walk so that cyclic values terminate.
// Values that only differ below this depth share a hash and are told apart by
// Equal.
const maxHashDepth = 16

// Identity lets a receiver type replace reference identity with value
// equality. CacheIdentity should return a comparable value; two receivers
// returning equal values share cached results.
type Identity interface {
	CacheIdentity() any
}

// Key is the identity of a cached call: receiver, operation and arguments.
//
// Receivers are compared as follows:
//   - a receiver implementing Identity is compared by CacheIdentity();
//   - pointers, maps, slices, channels and unsafe pointers by reference, so two
//     distinct instances with equal contents are different keys;
//   - other comparable values with ==;
//   - remaining values (structs holding slices, say) with reflect.DeepEqual;
//   - a non-nil func is never equal to anything.
//
// Arguments are compared element-wise with reflect.DeepEqual.
//
// A Key copies its argument slice. Values reachable from the arguments are
// not copied and must not be mutated while the Key is in use.
type Key struct {
	receiver any
	identity any
	op       string
	args     []any
	hash     uint64
}

// NewKey builds the key for calling op on receiver with args.
// Any argument, and the receiver, may be nil.
func NewKey(receiver any, op string, args ...any) Key {
	var copied []any
	if len(args) > 0 {
		copied = make([]any, len(args))
		copy(copied, args)
	}

	k := Key{
		receiver: receiver,
		identity: resolveIdentity(receiver),
		op:       op,
		args:     copied,
	}
	k.hash = k.computeHash()
	return k
}

// Receiver returns the receiver the key was built from.
func (k Key) Receiver() any { return k.receiver }

// Op returns the operation identifier.
func (k Key) Op() string { return k.op }

// Args returns a copy of the argument list.
func (k Key) Args() []any {
	if k.args == nil {
		return nil
	}
	out := make([]any, len(k.args))
	copy(out, k.args)
	return out
}

// Hash returns a 64-bit hash consistent with Equal.
func (k Key) Hash() uint64 { return k.hash }

// Equal reports whether k and other identify the same call.
func (k Key) Equal(other Key) bool {
	if k.hash != other.hash || k.op != other.op || len(k.args) != len(other.args) {
		return false
	}
	if !sameReceiver(k.identity, other.identity) {
		return false
	}
	for i := range k.args {
		if !reflect.DeepEqual(k.args[i], other.args[i]) {
			return false
		}
	}
	return true
}

// String returns a short form suitable for logs: op#hash.
// Arguments are left out because they may carry sensitive data.
func (k Key) String() string {
	return fmt.Sprintf("%s#%016x", k.op, k.hash)
}

func resolveIdentity(receiver any) any {
	id, ok := receiver.(Identity)
	if !ok {
		return receiver
	}
	if v := reflect.ValueOf(receiver); v.Kind() == reflect.Pointer && v.IsNil() {
		return receiver
	}
	return id.CacheIdentity()
}

func sameReceiver(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return !va.IsValid() && !vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Func:
		return va.IsNil() && vb.IsNil()
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.IsNil() == vb.IsNil() && va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}

	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func (k Key) computeHash() uint64 {
	w := hashWriter{d: xxhash.New()}
	w.receiver(k.identity)
	w.str(k.op)
	w.u64(uint64(len(k.args)))
	for _, arg := range k.args {
		w.value(reflect.ValueOf(arg), structural, 0)
	}
	return w.d.Sum64()
}

// walkMode selects which equality a hash walk must agree with.
type walkMode int

const (
	// structural follows references, matching reflect.DeepEqual.
	structural walkMode = iota
	// reference hashes references by address, matching ==.
	reference
)

const (
	tagNil byte = iota + 1
	tagFunc
	tagDepth
)

type hashWriter struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (w *hashWriter) tag(b byte) {
	w.buf[0] = b
	_, _ = w.d.Write(w.buf[:1])
}

func (w *hashWriter) u64(u uint64) {
	binary.LittleEndian.PutUint64(w.buf[:], u)
	_, _ = w.d.Write(w.buf[:])
}

func (w *hashWriter) float(f float64) {
	if f == 0 {
		f = 0 // -0 == +0
	}
	w.u64(math.Float64bits(f))
}

func (w *hashWriter) str(s string) {
	w.u64(uint64(len(s)))
	_, _ = w.d.WriteString(s)
}

func (w *hashWriter) receiver(r any) {
	v := reflect.ValueOf(r)
	if !v.IsValid() {
		w.tag(tagNil)
		return
	}

	mode := structural
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.UnsafePointer, reflect.Func:
		mode = reference
	default:
		if v.Comparable() {
			mode = reference
		}
	}
	w.value(v, mode, 0)
}

func (w *hashWriter) value(v reflect.Value, mode walkMode, depth int) {
	if depth > maxHashDepth {
		w.tag(tagDepth)
		return
	}
	if !v.IsValid() {
		w.tag(tagNil)
		return
	}
	w.str(v.Type().String())
	if w.scalar(v) {
		return
	}

	switch v.Kind() {
	case reflect.Array:
		w.u64(uint64(v.Len()))
		w.elems(v, mode, depth)
	case reflect.Slice:
		if v.IsNil() {
			w.tag(tagNil)
			return
		}
		w.u64(uint64(v.Len()))
		if mode == reference {
			w.u64(uint64(v.Pointer()))
			return
		}
		w.elems(v, mode, depth)
	case reflect.Map:
		if v.IsNil() {
			w.tag(tagNil)
			return
		}
		if mode == reference {
			w.u64(uint64(v.Pointer()))
			return
		}
		w.u64(uint64(v.Len()))
		// Entries are summed so iteration order does not matter.
		var sum uint64
		iter := v.MapRange()
		for iter.Next() {
			entry := hashWriter{d: xxhash.New()}
			entry.value(iter.Key(), mode, depth+1)
			entry.value(iter.Value(), mode, depth+1)
			sum += entry.d.Sum64()
		}
		w.u64(sum)
	case reflect.Pointer:
		if v.IsNil() {
			w.tag(tagNil)
			return
		}
		if mode == reference {
			w.u64(uint64(v.Pointer()))
			return
		}
		w.value(v.Elem(), mode, depth+1)
	case reflect.Interface:
		if v.IsNil() {
			w.tag(tagNil)
			return
		}
		w.value(v.Elem(), mode, depth+1)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			w.value(v.Field(i), mode, depth+1)
		}
	case reflect.Chan, reflect.UnsafePointer:
		w.u64(uint64(v.Pointer()))
	case reflect.Func:
		if v.IsNil() {
			w.tag(tagNil)
		} else {
			w.tag(tagFunc)
		}
	}
}

// scalar writes v if it is a basic kind and reports whether it did.
func (w *hashWriter) scalar(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.u64(1)
		} else {
			w.u64(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.u64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.u64(v.Uint())
	case reflect.Float32, reflect.Float64:
		w.float(v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		w.float(real(c))
		w.float(imag(c))
	case reflect.String:
		w.str(v.String())
	default:
		return false
	}
	return true
}

// elems writes the elements of a slice or array. Byte sequences are written
// in one call and other scalar elements skip the per-element type name, which
// the container's type already fixes.
func (w *hashWriter) elems(v reflect.Value, mode walkMode, depth int) {
	switch kind := v.Type().Elem().Kind(); {
	case kind == reflect.Uint8 && (v.Kind() == reflect.Slice || v.CanAddr()):
		_, _ = w.d.Write(v.Bytes())
		return
	case isScalarKind(kind):
		for i := 0; i < v.Len(); i++ {
			w.scalar(v.Index(i))
		}
		return
	}
	for i := 0; i < v.Len(); i++ {
		w.value(v.Index(i), mode, depth+1)
	}
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	}
	return false
}
