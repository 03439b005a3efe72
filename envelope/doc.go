// Package envelope approximates a sum of anisotropic Gaussian bumps by the
// convex and concave envelopes of supporting hyperplanes sampled on a grid.
//
// Each bump is locally convexified by adding c·x² per dimension (and
// concavified by subtracting it), so the tangent plane of the accumulated
// surface at a sampled grid point lies below (above) the surface. Keeping a
// subset of those planes and taking their max (min) gives a piecewise-linear
// upper and lower envelope; averaging the two recovers the original field.
//
// The stages are explicit and pure:
//
//	bumps, grid := ..., NewGrid(...)
//	acc, _ := Accumulate(ctx, bumps, grid, opts)
//	sel, _ := grid.Select(planes)
//	set := Extract(acc, grid, sel)
//	ev, _ := NewEvaluator(set, blend)
//	values, _ := Reconstruct(ctx, ev, grid, opts)
//
// Run composes them and compares the reconstruction with the ground truth.
package envelope
