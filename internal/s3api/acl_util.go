package s3api

import (
	"net"
	"net/http"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cidrContains(cidr, ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	_, block, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return block.Contains(parsedIP)
}
