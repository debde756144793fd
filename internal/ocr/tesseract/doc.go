// Package tesseract registers a local Tesseract engine under the name
// "tesseract". It needs libtesseract and is only compiled with the
// `tesseract` build tag.
package tesseract
