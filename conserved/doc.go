// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

/*
Package conserved implements block-sparse tensors with abelian charge
conservation.

# Overview

An Array[T] stores only the dense blocks compatible with its total charge:
for every stored block, the canonical sum of the per-axis sector charges
(weighted by each leg's sign flag) equals the array's qtotal. All structural
operations preserve this invariant, and the contraction engine exploits it
to skip block pairs that cannot contribute.

The package provides four groups of operations:

  - indexing: element access, slicing, masking, axis permutation
  - reshape: fusing several legs into one (CombineLegs) and back (SplitLegs)
  - blockwise: elementwise unary and binary operations across matched blocks
  - contraction: Outer, Inner and Tensordot

Basic usage:

	ci, _ := charge.NewInfo([]int{2}, nil)
	leg, _ := charge.FromSizes(ci, []int{1, 1}, []charge.Vector{{0}, {1}}, 1)
	id, _ := conserved.FromDense([]float64{1, 0, 0, 1},
		[]*charge.Leg{leg, leg.Conj()}, nil, 0)
	m, _ := conserved.Tensordot(id, id, 1)

Arrays are value-oriented: operations return new arrays and leave their
inputs unmodified. The I-prefixed variants mutate the receiver instead and
document their behavior under mid-operation failure. Shallow copies share
legs and block payloads; structural edits copy the block table first.
*/
package conserved
