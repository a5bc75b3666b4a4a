package xhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"oss.terrastruct.com/util-go/cmdlog"
)

// Error represents an HTTP error.
// It's exported only for comparison in tests.
type Error struct {
	Code int
	Resp interface{}
	Err  error
}

var _ interface {
	Is(error) bool
	Unwrap() error
} = Error{}

// Errorf creates a new error with code, resp, msg and v.
//
// When returned from an xhttp.HandlerFunc it is logged at the level matching
// the status code and written to the connection as the standard JSON error
// envelope. See HandlerFuncAdapter.
func Errorf(code int, resp interface{}, msg string, v ...interface{}) error {
	return errorWrap(code, resp, fmt.Errorf(msg, v...))
}

// ErrorWrap wraps err with the code and resp for xhttp.HandlerFunc.
func ErrorWrap(code int, resp interface{}, err error) error {
	return errorWrap(code, resp, err)
}

func errorWrap(code int, resp interface{}, err error) error {
	if resp == nil {
		resp = http.StatusText(code)
	}
	return Error{code, resp, err}
}

func (e Error) Unwrap() error {
	return e.Err
}

func (e Error) Is(err error) bool {
	e2, ok := err.(Error)
	if !ok {
		return false
	}
	return e.Code == e2.Code && e.Resp == e2.Resp && errors.Is(e.Err, e2.Err)
}

func (e Error) Error() string {
	return fmt.Sprintf("http error with code %v and resp %#v: %v", e.Code, e.Resp, e.Err)
}

// HandlerFunc is like http.HandlerFunc but returns an error.
// See Errorf and ErrorWrap.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// HandlerFuncAdapter adapts xhttp.HandlerFunc into http.Handler.
//
// Errors created with the xhttp helpers are logged at the level for their
// status code (400s warn, 500s error) and written as JSON. Any other error
// becomes a 500.
type HandlerFuncAdapter struct {
	Log  *cmdlog.Logger
	Func HandlerFunc
}

func (a HandlerFuncAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := a.Func(w, r)
	if err != nil {
		handleError(a.Log, w, err)
	}
}

func handleError(clog *cmdlog.Logger, w http.ResponseWriter, err error) {
	var herr Error
	ok := errors.As(err, &herr)
	if !ok {
		herr = ErrorWrap(http.StatusInternalServerError, nil, err).(Error)
	}

	logger := clog.Error
	if 400 <= herr.Code && herr.Code < 500 {
		logger = clog.Warn
	} else if herr.Code < 400 || 600 <= herr.Code {
		clog.Error.Printf("unexpected non error http status code %d with resp: %#v", herr.Code, herr.Resp)
		herr.Code = http.StatusInternalServerError
		herr.Resp = http.StatusText(herr.Code)
	}

	logger.Printf("error handling http request: %v", err)

	ww, ok := w.(writtenResponseWriter)
	if !ok {
		clog.Warn.Printf("response writer does not implement Written, double write logs possible: %#v", w)
	} else if ww.Written() {
		// Avoid double writes if an error occurred while the response was
		// being written.
		return
	}

	JSON(clog, w, herr.Code, map[string]interface{}{
		"success": false,
		"error":   herr.Resp,
	})
}

type writtenResponseWriter interface {
	Written() bool
}

func JSON(clog *cmdlog.Logger, w http.ResponseWriter, code int, v interface{}) {
	if v == nil {
		v = http.StatusText(code)
	}
	b, err := json.Marshal(v)
	if err != nil {
		clog.Error.Printf("failed to encode json response %#v: %v", v, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(b)
	if err != nil {
		clog.Warn.Printf("failed to write json response: %v", err)
	}
}

// ReadJSON decodes the request body into v, rejecting trailing garbage.
func ReadJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if err != nil {
		return Errorf(http.StatusBadRequest, "invalid json body", "failed to decode request body: %v", err)
	}
	if dec.More() {
		return Errorf(http.StatusBadRequest, "invalid json body", "trailing data after json body")
	}
	return nil
}
