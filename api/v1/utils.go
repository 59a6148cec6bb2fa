package v1

import (
	"log/slog"
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// loopbackIP is what a request resolves to when no public address is found;
// the geo lookup maps it to the development location.
const loopbackIP = "127.0.0.1"

// proxyHeaders are consulted, in order, after X-Forwarded-For.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// getClientIP picks the first public address from the proxy headers, then
// the socket. Development traffic ends up as loopback.
func getClientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")); ip != "" {
		return ip
	}

	for _, header := range proxyHeaders {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get(fiber.HeaderForwarded); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	if ip := selectPreferredIP([]string{c.Context().RemoteAddr().String(), c.IP()}); ip != "" {
		return ip
	}

	slog.Default().Debug("Fallback to loopback IP for request",
		slog.String("path", c.Path()))
	return loopbackIP
}

// isPrivateIP reports whether ip is loopback, link-local, RFC 1918/4193
// private or unspecified. IPv4-mapped IPv6 addresses are judged as IPv4.
func isPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

// selectPreferredIP returns the first public IPv4 address among values, or
// the first public IPv6 address when there is no IPv4 one.
func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || isPrivateIP(parsed) {
			continue
		}

		if parsed.To4() != nil {
			return clean
		}

		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

// normalizeIP strips quotes, brackets, ports and zones from a header value.
func normalizeIP(raw string) (string, net.IP) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"")
	if clean == "" {
		return "", nil
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return fromAddr(addrPort.Addr())
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return fromAddr(addr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func fromAddr(addr netip.Addr) (string, net.IP) {
	addr = addr.WithZone("").Unmap()
	return addr.String(), net.IP(addr.AsSlice())
}

// parseForwardedHeader returns the raw for= values of an RFC 7239 header.
func parseForwardedHeader(header string) []string {
	var candidates []string

	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if len(part) > len("for=") && strings.EqualFold(part[:len("for=")], "for=") {
				candidates = append(candidates, part[len("for="):])
			}
		}
	}

	return candidates
}
