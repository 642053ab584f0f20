// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"testing"
)

func TestMax(t *testing.T) {
	tests := []struct {
		x, y, out uint32
	}{
		{1, 2, 2},
		{2, 1, 2},
		{5, 5, 5},
	}
	for _, tt := range tests {
		if got := Max(tt.x, tt.y); got != tt.out {
			t.Errorf("Max(%d, %d) got %d, want %d", tt.x, tt.y, got, tt.out)
		}
	}
}

func TestMin(t *testing.T) {
	tests := []struct {
		in  []uint32
		out uint32
	}{
		{[]uint32{3, 1, 2}, 1},
		{[]uint32{5}, 5},
	}
	for _, tt := range tests {
		if got := Min(tt.in); got != tt.out {
			t.Errorf("Min(%v) got %d, want %d", tt.in, got, tt.out)
		}
	}
}

func TestStringInSlice(t *testing.T) {
	list := []string{"foo", "bar", "baz"}
	if !stringInSlice("bar", list) {
		t.Error("stringInSlice(bar) should be true")
	}
	if stringInSlice("qux", list) {
		t.Error("stringInSlice(qux) should be false")
	}
}

func TestReadUint32AndUint16(t *testing.T) {
	in := getAbsoluteFilePath("test/putty")
	file, err := New(in, nil)
	if err != nil {
		t.Fatalf("New(%s) failed, reason: %v", in, err)
	}
	defer file.Close()
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse(%s) failed, reason: %v", in, err)
	}

	if _, err := file.ReadUint32(0); err != nil {
		t.Errorf("ReadUint32(0) failed, reason: %v", err)
	}
	if _, err := file.ReadUint16(0); err != nil {
		t.Errorf("ReadUint16(0) failed, reason: %v", err)
	}
	if _, err := file.ReadUint32(file.size); err == nil {
		t.Error("ReadUint32 past EOF should fail")
	}
}
