// Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
package jaderr

import (
	"errors"
	"testing"
)

func TestIsFatal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&ErrChecksum{Expected: "a", Actual: "b", Path: "/x"}, true},
		{&ErrDatabase{Op: "save_disk", Err: errors.New("gone")}, true},
		{NewCritical("disk %d revalidation failed", 7), true},
		{&ErrIO{Op: "rename", Err: errors.New("eperm")}, false},
		{&ErrJSON{Op: "marshal", Err: errors.New("cycle")}, false},
		{&ErrMail{Op: "send", Err: errors.New("refused")}, false},
		{&ErrTemplate{Name: "createArchiveDisk", Err: errors.New("parse")}, false},
		{&ErrAddress{Address: "not-an-address", Err: errors.New("bad")}, false},
		{&ErrOther{Err: errors.New("misc")}, false},
	}
	for _, c := range cases {
		if got := IsFatal(c.err); got != c.want {
			t.Errorf("IsFatal(%T) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(&ErrIO{Op: "copy", Err: inner}, inner) {
		t.Error("ErrIO should unwrap to its cause")
	}
	if !errors.Is(&ErrDatabase{Op: "q", Err: inner}, inner) {
		t.Error("ErrDatabase should unwrap to its cause")
	}
}
