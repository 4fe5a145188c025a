// Package profile holds the charge-versus-path-length histogram shared by
// segment fitting, track assembly and particle identification.
//
// A Builder accumulates weights into fixed bins; a Profile is the immutable
// snapshot the analysis stages work on.
package profile
