//go:build !linux

package probe

import "go.uber.org/zap"

func openNative(*zap.Logger) (SystemProbe, error) {
	return nil, ErrUnsupported
}
