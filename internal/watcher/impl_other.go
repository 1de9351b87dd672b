//go:build !linux

package watcher

import "github.com/Hara602/usbAudit/internal/model"

type nopWatcher struct{}

func newWatcher() DeviceWatcher                              { return &nopWatcher{} }
func (w *nopWatcher) Start() (<-chan model.USBEvent, error) { return nil, ErrUnsupported }
func (w *nopWatcher) Stop()                                  {}
