package normalize

import (
	"errors"
	"fmt"
)

// Kind classifies a normalization failure
type Kind int

const (
	// UnsupportedFormat means the input did not match any recognized image container
	UnsupportedFormat Kind = iota + 1
	// DecodeError means the format was recognized but the payload could not be decoded
	DecodeError
	// EncodeError means the resized image could not be encoded
	EncodeError
)

func (k Kind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported format"
	case DecodeError:
		return "decode error"
	case EncodeError:
		return "encode error"
	default:
		return "unknown error"
	}
}

// Errors, usable with errors.Is against an *Error of the matching kind
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecode            = errors.New("error decoding image")
	ErrEncode            = errors.New("error encoding image")
)

var kindErrors = map[Kind]error{
	UnsupportedFormat: ErrUnsupportedFormat,
	DecodeError:       ErrDecode,
	EncodeError:       ErrEncode,
}

// Error is returned for every failed normalization
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Name, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %s", e.Name, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error for this kind
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// KindOf returns the kind of a normalization error anywhere in err's chain
func KindOf(err error) (Kind, bool) {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind, true
	}

	return 0, false
}
