// Package synthetic generates charge maps from straight ion tracks for
// tests and demonstrations.
//
// Energy is deposited along each track following the ion's Bragg curve,
// smeared by Gaussian diffusion onto the strips and time samples of every
// projection, and optionally overlaid with Gaussian noise.
// Key types: Generator, TrackSpec, Params.
//
// Dependency rule: synthetic may depend on every internal/tpc layer; no
// layer may depend on it.
package synthetic
