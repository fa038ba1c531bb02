// Package jbig2enc implements the encoding half of the JBIG2 bilevel image
// format: the adaptive MQ arithmetic coder, the integer and symbol-ID coding
// procedures built on it, generic and refinement region bitmap coders, an
// unsupervised symbol classifier, symbol dictionary and text region encoders,
// and the segment/container writer that frames their payloads.
package jbig2enc
