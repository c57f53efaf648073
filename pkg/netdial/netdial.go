// Package netdial builds per-line HTTP clients. Measurement traffic for a
// line must egress through that line, either by binding the local address to
// the line's IP or by dialing through an explicit transport config.
package netdial

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"linewatch/pkg/models"

	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// ClientFor returns an HTTP client whose connections originate from the
// given line. Preference order: the line's transport config URL, then its
// local IP address, then the default dialer.
func ClientFor(line models.Line, timeout time.Duration) (*http.Client, error) {
	if line.Transport != "" {
		return transportClient(line.Transport, timeout)
	}
	if line.IPAddress != "" {
		return sourceBoundClient(line.IPAddress, timeout)
	}
	return &http.Client{Timeout: timeout}, nil
}

// transportClient dials every connection through an outline-sdk transport
// config string (for example a socks5:// URL pointing at the line's
// gateway).
func transportClient(transport string, timeout time.Duration) (*http.Client, error) {
	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}

	return &http.Client{
		Transport: &http.Transport{DialContext: dialContext},
		Timeout:   timeout,
	}, nil
}

func sourceBoundClient(ipAddress string, timeout time.Duration) (*http.Client, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid line IP address: %s", ipAddress)
	}

	dialer := &net.Dialer{
		LocalAddr: &net.TCPAddr{IP: ip},
	}

	return &http.Client{
		Transport: &http.Transport{DialContext: dialer.DialContext},
		Timeout:   timeout,
	}, nil
}
