// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package charge

import (
	"github.com/pkg/errors"
)

// Vector is a charge vector: one integer per conserved quantity.
type Vector []int

// Clone returns a copy of the vector.
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// Equal reports whether two vectors are identical component-wise.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	for _, c := range v {
		if c != 0 {
			return false
		}
	}
	return true
}

// CompareLastMajor orders integer rows lexicographically with the last
// component most significant. This is the one fixed comparator used for
// sorting charges and block rows everywhere in this module.
func CompareLastMajor(a, b []int) int {
	for i := len(a) - 1; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// InversePerm returns the inverse of a permutation.
func InversePerm(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Info is the nature of the charge: the number of conserved quantities and
// the cyclic modulus of each. A modulus of 0 leaves the component unbounded.
type Info struct {
	mod   []int
	names []string
}

// NewInfo creates an Info with the given per-component moduli and optional
// names. Pass nil names for anonymous charges.
func NewInfo(mod []int, names []string) (*Info, error) {
	for i, m := range mod {
		if m < 0 {
			return nil, errors.Errorf("charge: modulus %d of component %d must be >= 0", m, i)
		}
	}
	if names == nil {
		names = make([]string, len(mod))
	}
	if len(names) != len(mod) {
		return nil, errors.Errorf("charge: got %d names for %d charges", len(names), len(mod))
	}
	return &Info{mod: append([]int(nil), mod...), names: append([]string(nil), names...)}, nil
}

// Trivial returns the Info with no conserved quantities.
func Trivial() *Info {
	return &Info{}
}

// QNumber returns the number of conserved quantities.
func (ci *Info) QNumber() int { return len(ci.mod) }

// Mod returns the modulus of one component.
func (ci *Info) Mod(i int) int { return ci.mod[i] }

// Names returns the component names.
func (ci *Info) Names() []string { return append([]string(nil), ci.names...) }

// Equal reports whether two Infos describe the same charge group.
func (ci *Info) Equal(other *Info) bool {
	if ci == other {
		return true
	}
	if len(ci.mod) != len(other.mod) {
		return false
	}
	for i := range ci.mod {
		if ci.mod[i] != other.mod[i] {
			return false
		}
	}
	return true
}

// MakeValid canonicalizes a charge vector component-wise. A nil vector
// yields the zero charge. The input is not modified.
func (ci *Info) MakeValid(v Vector) Vector {
	out := make(Vector, len(ci.mod))
	if v == nil {
		return out
	}
	if len(v) != len(ci.mod) {
		panic("charge: vector length does not match the number of charges")
	}
	for i, c := range v {
		out[i] = ci.validComponent(c, i)
	}
	return out
}

// IsValid reports whether a vector is already canonical.
func (ci *Info) IsValid(v Vector) bool {
	if len(v) != len(ci.mod) {
		return false
	}
	for i, c := range v {
		if c != ci.validComponent(c, i) {
			return false
		}
	}
	return true
}

func (ci *Info) validComponent(c, i int) int {
	m := ci.mod[i]
	if m == 0 {
		return c
	}
	c %= m
	if c < 0 {
		c += m
	}
	return c
}

// Fuse adds charge vectors and canonicalizes the sum.
func (ci *Info) Fuse(vs ...Vector) Vector {
	sum := make(Vector, len(ci.mod))
	for _, v := range vs {
		if len(v) != len(ci.mod) {
			panic("charge: vector length does not match the number of charges")
		}
		for i, c := range v {
			sum[i] += c
		}
	}
	return ci.MakeValid(sum)
}

// Sub returns the canonical difference a - b.
func (ci *Info) Sub(a, b Vector) Vector {
	diff := make(Vector, len(ci.mod))
	for i := range diff {
		diff[i] = a[i] - b[i]
	}
	return ci.MakeValid(diff)
}

// Neg returns the canonical negation of a vector.
func (ci *Info) Neg(v Vector) Vector {
	n := make(Vector, len(ci.mod))
	for i, c := range v {
		n[i] = -c
	}
	return ci.MakeValid(n)
}

// AdjustSign returns the canonical qconj-weighted vector: v for qconj +1,
// -v for qconj -1.
func (ci *Info) AdjustSign(v Vector, qconj int) Vector {
	if qconj == 1 {
		return ci.MakeValid(v)
	}
	return ci.Neg(v)
}
