//go:build cgo && cpython

package snakebind

/*
#cgo pkg-config: python3-embed
#include <Python.h>
#include <stdlib.h>
#include <string.h>

static Py_ssize_t sb_refcnt(PyObject *o) { return Py_REFCNT(o); }
static PyObject *sb_none(void) { return Py_None; }
static int sb_is_none(PyObject *o) { return o == Py_None; }
static int sb_is_bool(PyObject *o) { return PyBool_Check(o); }
static int sb_is_true(PyObject *o) { return o == Py_True; }
static const char *sb_type_name(PyObject *o) { return Py_TYPE(o)->tp_name; }

static char *sb_initialize(const char *home, const char *program, const char **paths, Py_ssize_t npaths) {
	PyStatus status;
	PyConfig config;
	PyConfig_InitIsolatedConfig(&config);
	config.install_signal_handlers = 0;

	if (home != NULL && home[0] != '\0') {
		status = PyConfig_SetBytesString(&config, &config.home, home);
		if (PyStatus_Exception(status)) goto fail;
	}
	if (program != NULL && program[0] != '\0') {
		status = PyConfig_SetBytesString(&config, &config.program_name, program);
		if (PyStatus_Exception(status)) goto fail;
	}
	config.module_search_paths_set = 1;
	for (Py_ssize_t i = 0; i < npaths; i++) {
		wchar_t *w = Py_DecodeLocale(paths[i], NULL);
		if (w == NULL) {
			PyConfig_Clear(&config);
			return strdup("cannot decode module search path");
		}
		status = PyWideStringList_Append(&config.module_search_paths, w);
		PyMem_RawFree(w);
		if (PyStatus_Exception(status)) goto fail;
	}

	status = Py_InitializeFromConfig(&config);
	if (PyStatus_Exception(status)) goto fail;
	PyConfig_Clear(&config);
	return NULL;

fail:
	PyConfig_Clear(&config);
	return strdup(status.err_msg != NULL ? status.err_msg : "python initialization failed");
}

// sb_format_exception formats the current exception as type name, message
// and traceback and clears it. The strings are malloc'd.
static void sb_format_exception(char **type, char **msg, char **tb) {
	PyObject *ptype = NULL, *pvalue = NULL, *ptb = NULL;
	*type = NULL; *msg = NULL; *tb = NULL;

	PyErr_Fetch(&ptype, &pvalue, &ptb);
	if (ptype == NULL) return;
	PyErr_NormalizeException(&ptype, &pvalue, &ptb);

	*type = strdup(((PyTypeObject *)ptype)->tp_name);
	if (pvalue != NULL) {
		PyObject *s = PyObject_Str(pvalue);
		if (s != NULL) {
			const char *u = PyUnicode_AsUTF8(s);
			if (u != NULL) *msg = strdup(u);
			Py_DecRef(s);
		}
	}
	PyObject *mod = PyImport_ImportModule("traceback");
	if (mod != NULL) {
		PyObject *lines = PyObject_CallMethod(mod, "format_exception", "OOO",
			ptype, pvalue != NULL ? pvalue : Py_None, ptb != NULL ? ptb : Py_None);
		if (lines != NULL) {
			PyObject *sep = PyUnicode_FromString("");
			PyObject *joined = sep != NULL ? PyUnicode_Join(sep, lines) : NULL;
			if (joined != NULL) {
				const char *u = PyUnicode_AsUTF8(joined);
				if (u != NULL) *tb = strdup(u);
				Py_DecRef(joined);
			}
			Py_XDECREF(sep);
			Py_DecRef(lines);
		}
		Py_DecRef(mod);
	}
	PyErr_Clear();
	Py_XDECREF(ptype);
	Py_XDECREF(pvalue);
	Py_XDECREF(ptb);
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

// cpython embeds the CPython shared library through cgo.
type cpython struct {
	mu          sync.Mutex
	initialized bool
	main        *C.PyThreadState
}

// NewCPython is the default NativeFactory. CPython can only be initialized
// once per process at a time.
func NewCPython(*PythonLocation) (Native, error) {
	return &cpython{}, nil
}

func pyObj(r Ref) *C.PyObject {
	return (*C.PyObject)(unsafe.Pointer(r))
}

func pyRef(p *C.PyObject) Ref {
	return Ref(unsafe.Pointer(p))
}

func (py *cpython) Initialize(cfg NativeConfig) error {
	py.mu.Lock()
	defer py.mu.Unlock()
	if py.initialized || C.Py_IsInitialized() != 0 {
		return errors.New("python is already initialized in this process")
	}

	home := C.CString(cfg.Home)
	defer C.free(unsafe.Pointer(home))
	program := C.CString(cfg.ProgramName)
	defer C.free(unsafe.Pointer(program))

	paths := make([]*C.char, len(cfg.SearchPath))
	for i, p := range cfg.SearchPath {
		paths[i] = C.CString(p)
	}
	defer func() {
		for _, p := range paths {
			C.free(unsafe.Pointer(p))
		}
	}()
	var pathsPtr **C.char
	if len(paths) > 0 {
		// paths is Go memory holding only C pointers, which cgo allows.
		pathsPtr = &paths[0]
	}

	if msg := C.sb_initialize(home, program, pathsPtr, C.Py_ssize_t(len(paths))); msg != nil {
		defer C.free(unsafe.Pointer(msg))
		return errors.New(C.GoString(msg))
	}
	// Give up the GIL taken by initialization; every later use goes
	// through EnsureGIL.
	py.main = C.PyEval_SaveThread()
	py.initialized = true
	return nil
}

func (py *cpython) Finalize() error {
	py.mu.Lock()
	defer py.mu.Unlock()
	if !py.initialized {
		return nil
	}
	py.initialized = false
	C.PyEval_RestoreThread(py.main)
	if C.Py_FinalizeEx() < 0 {
		return errors.New("errors occurred while finalizing python")
	}
	return nil
}

func (py *cpython) EnsureGIL() GILState {
	return GILState(C.PyGILState_Ensure())
}

func (py *cpython) ReleaseGIL(state GILState) {
	C.PyGILState_Release(C.PyGILState_STATE(state))
}

func (py *cpython) IncRef(r Ref) { C.Py_IncRef(pyObj(r)) }
func (py *cpython) DecRef(r Ref) { C.Py_DecRef(pyObj(r)) }

func (py *cpython) RefCount(r Ref) int64 {
	return int64(C.sb_refcnt(pyObj(r)))
}

func (py *cpython) None() Ref             { return pyRef(C.sb_none()) }
func (py *cpython) IsNone(r Ref) bool     { return C.sb_is_none(pyObj(r)) != 0 }
func (py *cpython) TypeName(r Ref) string { return C.GoString(C.sb_type_name(pyObj(r))) }

// pyErr converts the pending Python exception to a Go error.
func pyErr() error {
	var ctype, cmsg, ctb *C.char
	C.sb_format_exception(&ctype, &cmsg, &ctb)
	defer C.free(unsafe.Pointer(ctype))
	defer C.free(unsafe.Pointer(cmsg))
	defer C.free(unsafe.Pointer(ctb))
	if ctype == nil {
		return errors.New("python call failed without an exception")
	}
	e := &PythonException{Exception: C.GoString(ctype)}
	if cmsg != nil {
		e.Message = C.GoString(cmsg)
	}
	if ctb != nil {
		e.Traceback = C.GoString(ctb)
	}
	return e
}

func newRef(p *C.PyObject) (Ref, error) {
	if p == nil {
		return nil, pyErr()
	}
	return pyRef(p), nil
}

func errOccurred() bool {
	return C.PyErr_Occurred() != nil
}

func (py *cpython) NewInt(v int64) (Ref, error) {
	return newRef(C.PyLong_FromLongLong(C.longlong(v)))
}

func (py *cpython) AsInt(r Ref) (int64, error) {
	v := C.PyLong_AsLongLong(pyObj(r))
	if v == -1 && errOccurred() {
		return 0, pyErr()
	}
	return int64(v), nil
}

func (py *cpython) NewFloat(v float64) (Ref, error) {
	return newRef(C.PyFloat_FromDouble(C.double(v)))
}

func (py *cpython) AsFloat(r Ref) (float64, error) {
	v := C.PyFloat_AsDouble(pyObj(r))
	if v == -1 && errOccurred() {
		return 0, pyErr()
	}
	return float64(v), nil
}

func (py *cpython) NewBool(v bool) (Ref, error) {
	var l C.long
	if v {
		l = 1
	}
	return newRef(C.PyBool_FromLong(l))
}

func (py *cpython) AsBool(r Ref) (bool, error) {
	if C.sb_is_bool(pyObj(r)) == 0 {
		return false, &PythonException{Exception: "TypeError", Message: "expected bool, got " + py.TypeName(r)}
	}
	return C.sb_is_true(pyObj(r)) != 0, nil
}

func (py *cpython) NewStr(v string) (Ref, error) {
	cs := C.CString(v)
	defer C.free(unsafe.Pointer(cs))
	return newRef(C.PyUnicode_FromStringAndSize(cs, C.Py_ssize_t(len(v))))
}

func (py *cpython) AsStr(r Ref) (string, error) {
	var size C.Py_ssize_t
	p := C.PyUnicode_AsUTF8AndSize(pyObj(r), &size)
	if p == nil {
		return "", pyErr()
	}
	return C.GoStringN(p, C.int(size)), nil
}

func (py *cpython) NewBytes(v []byte) (Ref, error) {
	if len(v) == 0 {
		return newRef(C.PyBytes_FromStringAndSize(nil, 0))
	}
	return newRef(C.PyBytes_FromStringAndSize((*C.char)(unsafe.Pointer(&v[0])), C.Py_ssize_t(len(v))))
}

func (py *cpython) AsBytes(r Ref) ([]byte, error) {
	var (
		p    *C.char
		size C.Py_ssize_t
	)
	if C.PyBytes_AsStringAndSize(pyObj(r), &p, &size) < 0 {
		return nil, pyErr()
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(size)), nil
}

func (py *cpython) NewList(n int64) (Ref, error) {
	return newRef(C.PyList_New(C.Py_ssize_t(n)))
}

func (py *cpython) ListSet(list Ref, i int64, item Ref) error {
	if C.PyList_SetItem(pyObj(list), C.Py_ssize_t(i), pyObj(item)) < 0 {
		return pyErr()
	}
	return nil
}

func (py *cpython) ListLen(list Ref) (int64, error) {
	n := C.PyList_Size(pyObj(list))
	if n < 0 {
		return 0, pyErr()
	}
	return int64(n), nil
}

func (py *cpython) ListGet(list Ref, i int64) (Ref, error) {
	return newRef(C.PyList_GetItem(pyObj(list), C.Py_ssize_t(i)))
}

func (py *cpython) NewTuple(n int64) (Ref, error) {
	return newRef(C.PyTuple_New(C.Py_ssize_t(n)))
}

func (py *cpython) TupleSet(tuple Ref, i int64, item Ref) error {
	if C.PyTuple_SetItem(pyObj(tuple), C.Py_ssize_t(i), pyObj(item)) < 0 {
		return pyErr()
	}
	return nil
}

func (py *cpython) TupleLen(tuple Ref) (int64, error) {
	n := C.PyTuple_Size(pyObj(tuple))
	if n < 0 {
		return 0, pyErr()
	}
	return int64(n), nil
}

func (py *cpython) TupleGet(tuple Ref, i int64) (Ref, error) {
	return newRef(C.PyTuple_GetItem(pyObj(tuple), C.Py_ssize_t(i)))
}

func (py *cpython) DictFromPairs(pairs Ref) (Ref, error) {
	d := C.PyDict_New()
	if d == nil {
		return nil, pyErr()
	}
	if C.PyDict_MergeFromSeq2(d, pyObj(pairs), 1) < 0 {
		C.Py_DecRef(d)
		return nil, pyErr()
	}
	return pyRef(d), nil
}

func (py *cpython) DictPairs(dict Ref) (Ref, error) {
	return newRef(C.PyDict_Items(pyObj(dict)))
}

func (py *cpython) ImportModule(name string) (Ref, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return newRef(C.PyImport_ImportModule(cs))
}

func (py *cpython) GetAttr(o Ref, name string) (Ref, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return newRef(C.PyObject_GetAttrString(pyObj(o), cs))
}

func (py *cpython) Call(callable Ref, args []Ref, kwnames []string, kwvalues []Ref) (Ref, error) {
	tuple := C.PyTuple_New(C.Py_ssize_t(len(args)))
	if tuple == nil {
		return nil, pyErr()
	}
	defer C.Py_DecRef(tuple)
	for i, a := range args {
		C.Py_IncRef(pyObj(a))
		C.PyTuple_SetItem(tuple, C.Py_ssize_t(i), pyObj(a))
	}

	var kwargs *C.PyObject
	if len(kwnames) > 0 {
		kwargs = C.PyDict_New()
		if kwargs == nil {
			return nil, pyErr()
		}
		defer C.Py_DecRef(kwargs)
		for i, name := range kwnames {
			cs := C.CString(name)
			rc := C.PyDict_SetItemString(kwargs, cs, pyObj(kwvalues[i]))
			C.free(unsafe.Pointer(cs))
			if rc < 0 {
				return nil, pyErr()
			}
		}
	}
	return newRef(C.PyObject_Call(pyObj(callable), tuple, kwargs))
}
