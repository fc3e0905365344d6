// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package charge describes abelian conserved quantities and how tensor
// axes decompose under them.
//
// # Overview
//
// Three concepts live here:
//   - Info: the charge group. Each conserved quantity is one component of a
//     charge vector, combined additively and reduced modulo a per-component
//     modulus (0 means unbounded, i.e. a U(1)-like charge).
//   - Leg: one tensor axis, split into contiguous sectors of equal charge,
//     with a sign (qconj) deciding how the axis contributes to a tensor's
//     total charge.
//   - Pipe: a Leg formed by fusing several legs, carrying the reverse map
//     from each fused sector back to member sectors and sub-offsets.
//     A pipe is a *Leg whose Fusion() is non-nil.
//
// # Basic Usage
//
//	ci, _ := charge.NewInfo([]int{2}, []string{"parity"})
//	leg, _ := charge.FromSizes(ci, []int{1, 1}, []charge.Vector{{0}, {1}}, +1)
//	pipe, _ := charge.NewPipe([]*charge.Leg{leg, leg.Conj()}, +1)
//
// Legs are treated as immutable once shared: every operation returns a new
// value. The conserved package builds its block layout on the sector tables
// defined here.
package charge
