//go:build darwin

package screen

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>
*/
import "C"

func preflightScreenCapture() bool {
	return bool(C.CGPreflightScreenCaptureAccess())
}

func requestScreenCapture() bool {
	return bool(C.CGRequestScreenCaptureAccess())
}
