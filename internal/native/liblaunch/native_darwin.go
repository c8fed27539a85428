//go:build darwin && cgo

package liblaunch

/*
#cgo CFLAGS: -Wno-deprecated-declarations
#include <launch.h>
#include <stdint.h>
#include <stdlib.h>

void launchkit_dict_iterate(launch_data_t dict, uintptr_t ctx);
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/observability"
	"github.com/rs/zerolog/log"
)

// Native calls straight into liblaunch. Handles are launch_data_t pointers
// owned by the C heap.
type Native struct{}

var _ launch.Native = (*Native)(nil)

func New() *Native { return &Native{} }

// Open returns the platform native.
func Open() (launch.Native, error) {
	observability.RegisterMetrics()
	return New(), nil
}

func ld(h launch.Handle) C.launch_data_t {
	return C.launch_data_t(unsafe.Pointer(h))
}

func handleOf(d C.launch_data_t, kind launch.Kind) launch.Handle {
	if d == nil {
		return launch.NilHandle
	}
	observability.RecordHandleAlloc(Name, kind.String())
	return launch.Handle(unsafe.Pointer(d))
}

func (n *Native) Alloc(kind launch.Kind) launch.Handle {
	return handleOf(C.launch_data_alloc(C.launch_data_type_t(kind)), kind)
}

func (n *Native) NewInteger(v int64) launch.Handle {
	return handleOf(C.launch_data_new_integer(C.longlong(v)), launch.KindInteger)
}

func (n *Native) NewReal(v float64) launch.Handle {
	return handleOf(C.launch_data_new_real(C.double(v)), launch.KindReal)
}

func (n *Native) NewBool(v bool) launch.Handle {
	return handleOf(C.launch_data_new_bool(C.bool(v)), launch.KindBool)
}

func (n *Native) NewString(v string) launch.Handle {
	cs := C.CString(v)
	defer C.free(unsafe.Pointer(cs))
	return handleOf(C.launch_data_new_string(cs), launch.KindString)
}

func (n *Native) NewFD(fd int) launch.Handle {
	return handleOf(C.launch_data_new_fd(C.int(fd)), launch.KindFileDescriptor)
}

func (n *Native) NewMachPort(port uint32) launch.Handle {
	return handleOf(C.launch_data_new_machport(C.mach_port_t(port)), launch.KindMachPort)
}

func (n *Native) Free(h launch.Handle) {
	if h == launch.NilHandle {
		return
	}
	C.launch_data_free(ld(h))
	observability.RecordHandleFrees(Name, 1)
}

func (n *Native) Type(h launch.Handle) launch.Kind {
	return launch.Kind(C.launch_data_get_type(ld(h)))
}

func (n *Native) Integer(h launch.Handle) int64 { return int64(C.launch_data_get_integer(ld(h))) }
func (n *Native) Real(h launch.Handle) float64  { return float64(C.launch_data_get_real(ld(h))) }
func (n *Native) Bool(h launch.Handle) bool     { return bool(C.launch_data_get_bool(ld(h))) }
func (n *Native) FD(h launch.Handle) int        { return int(C.launch_data_get_fd(ld(h))) }
func (n *Native) Errno(h launch.Handle) int     { return int(C.launch_data_get_errno(ld(h))) }

func (n *Native) String(h launch.Handle) string {
	return C.GoString(C.launch_data_get_string(ld(h)))
}

func (n *Native) MachPort(h launch.Handle) uint32 {
	return uint32(C.launch_data_get_machport(ld(h)))
}

// DictIterate passes fn through a cgo.Handle; liblaunch calls back into
// launchkitDictVisit for each entry before launch_data_dict_iterate returns.
func (n *Native) DictIterate(dict launch.Handle, fn func(value launch.Handle, key string)) {
	ctx := cgo.NewHandle(fn)
	defer ctx.Delete()
	C.launchkit_dict_iterate(ld(dict), C.uintptr_t(ctx))
}

//export launchkitDictVisit
func launchkitDictVisit(value C.launch_data_t, key *C.char, ctx C.uintptr_t) {
	fn := cgo.Handle(ctx).Value().(func(launch.Handle, string))
	fn(launch.Handle(unsafe.Pointer(value)), C.GoString(key))
}

func (n *Native) ArrayIndex(array launch.Handle, index int) launch.Handle {
	if index < 0 {
		return launch.NilHandle
	}
	return launch.Handle(unsafe.Pointer(C.launch_data_array_get_index(ld(array), C.size_t(index))))
}

func (n *Native) ArrayCount(array launch.Handle) int {
	return int(C.launch_data_array_get_count(ld(array)))
}

func (n *Native) DictInsert(dict, value launch.Handle, key string) bool {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	return bool(C.launch_data_dict_insert(ld(dict), ld(value), ck))
}

func (n *Native) DictRemove(dict launch.Handle, key string) bool {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	return bool(C.launch_data_dict_remove(ld(dict), ck))
}

func (n *Native) ArraySetIndex(array, value launch.Handle, index int) bool {
	if index < 0 {
		return false
	}
	return bool(C.launch_data_array_set_index(ld(array), ld(value), C.size_t(index)))
}

// Send hands request to launchd. A nil reply carries errno from launch_msg.
func (n *Native) Send(request launch.Handle) (launch.Handle, error) {
	reply, err := C.launch_msg(ld(request))
	if reply == nil {
		log.Debug().Err(err).Msg("liblaunch.launch_msg failed")
		return launch.NilHandle, err
	}
	return handleOf(reply, launch.Kind(C.launch_data_get_type(reply))), nil
}
