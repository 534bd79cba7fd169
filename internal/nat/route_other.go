//go:build !linux

package nat

import "fmt"

type Netlink struct{}

func (Netlink) DefaultEgress(f Family) (string, error) {
	return "", fmt.Errorf("default %s route lookup requires linux", f)
}
