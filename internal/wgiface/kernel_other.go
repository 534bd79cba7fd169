//go:build !linux

package wgiface

import (
	"errors"
	"net/netip"

	"github.com/containerd/errdefs"
)

var errUnsupported = errors.Join(errors.New("kernel wireguard requires linux"), errdefs.ErrNotImplemented)

type unsupported struct{}

func NewKernel() Kernel { return unsupported{} }

func (unsupported) LinkIndex(string) (int, error)       { return 0, errUnsupported }
func (unsupported) AddWireguardLink(string) error       { return errUnsupported }
func (unsupported) DeleteLink(int) error                { return errUnsupported }
func (unsupported) AddAddress(int, netip.Prefix) error  { return errUnsupported }
func (unsupported) SetUp(int) error                     { return errUnsupported }
func (unsupported) AddRoute(int, netip.Prefix) error    { return errUnsupported }
func (unsupported) DeleteRoute(int, netip.Prefix) error { return errUnsupported }
